package rpcpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

func TestDescriptors_Services(t *testing.T) {
	chord := ChordFile().Services().ByName("Chord")
	require.NotNil(t, chord)
	assert.Equal(t, ChordService, string(chord.FullName()))
	assert.NotNil(t, chord.Methods().ByName("FindSuccessor"))

	dht := DHTFile().Services().ByName("DHT")
	require.NotNil(t, dht)
	assert.Equal(t, DHTService, string(dht.FullName()))
	assert.Equal(t, "dht.Node", string(dht.Methods().ByName("GetKey").Output().Fields().ByName("forwardNode").Message().FullName()))
}

func TestNode_WireEncoding(t *testing.T) {
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(Node{Address: "a", Identifier: 1}.encode())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x01, 'a', 0x10, 0x01}, b)
}

func TestGetKeyResponse_ForwardPresence(t *testing.T) {
	tests := []struct {
		name string
		in   GetKeyResponse
	}{
		{name: "terminal", in: GetKeyResponse{Value: []byte("bar")}},
		{name: "forward", in: GetKeyResponse{ForwardNode: &ForwardNode{Address: "10.0.0.2"}, PathLength: 3}},
		{name: "empty forward", in: GetKeyResponse{ForwardNode: &ForwardNode{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := proto.Marshal(tt.in.encode())
			require.NoError(t, err)

			out := dynamicpb.NewMessage(getKeyResponseDesc)
			require.NoError(t, proto.Unmarshal(b, out))

			got, err := decodeGetKeyResponse(out)
			require.NoError(t, err)
			assert.Equal(t, string(tt.in.Value), string(got.Value))
			assert.Equal(t, tt.in.PathLength, got.PathLength)
			if tt.in.ForwardNode == nil {
				assert.Nil(t, got.ForwardNode)
			} else {
				require.NotNil(t, got.ForwardNode)
				assert.Equal(t, tt.in.ForwardNode.Address, got.ForwardNode.Address)
			}
		})
	}
}

func TestSetKeyRequest_OpaqueKey(t *testing.T) {
	key := []byte{0xff, 0x00, 0xfe}
	b, err := proto.Marshal(SetKeyRequest{Key: key, Value: []byte("v"), Transfer: true}.encode())
	require.NoError(t, err)

	out := dynamicpb.NewMessage(setKeyRequestDesc)
	require.NoError(t, proto.Unmarshal(b, out))

	got, err := decodeSetKeyRequest(out)
	require.NoError(t, err)
	assert.Equal(t, key, got.Key)
	assert.True(t, got.Transfer)
}

func TestDecode_RejectsWrongMessage(t *testing.T) {
	_, err := decodeNode(LookupRequest{Key: 1}.encode())
	assert.Error(t, err)

	_, err = decodeNode(nil)
	assert.Error(t, err)
}
