package rpcpb

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Node is chord.Node: a ring member as reported by the service.
type Node struct {
	Address    string
	Identifier int64
}

// FindSuccessorRequest is chord.FindSuccessorRequest.
type FindSuccessorRequest struct {
	ID int64
}

// ChordSetKeyRequest is chord.SetKeyRequest, keyed by identifier.
type ChordSetKeyRequest struct {
	Key   int64
	Value []byte
}

// LookupRequest is chord.LookupRequest.
type LookupRequest struct {
	Key int64
}

// LookupResponse is chord.LookupResponse.
type LookupResponse struct {
	Value []byte
}

// ForwardNode is dht.Node: where to re-issue a request.
type ForwardNode struct {
	Address string
}

// SetKeyRequest is dht.SetKeyRequest.
type SetKeyRequest struct {
	Key      []byte
	Value    []byte
	Transfer bool
}

// SetKeyResponse is dht.SetKeyResponse.
type SetKeyResponse struct {
	ForwardNode *ForwardNode
}

// GetKeyRequest is dht.GetKeyRequest.
type GetKeyRequest struct {
	Key []byte
}

// GetKeyResponse is dht.GetKeyResponse.
type GetKeyResponse struct {
	Value       []byte
	ForwardNode *ForwardNode
	PathLength  int32
}

func (x Node) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(chordNodeDesc)
	set(m, "address", protoreflect.ValueOfString(x.Address))
	set(m, "identifier", protoreflect.ValueOfInt64(x.Identifier))
	return m
}

func decodeNode(pm protoreflect.ProtoMessage) (Node, error) {
	m, err := expect(pm, chordNodeDesc)
	if err != nil {
		return Node{}, err
	}
	return Node{
		Address:    get(m, "address").String(),
		Identifier: get(m, "identifier").Int(),
	}, nil
}

func (x FindSuccessorRequest) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(findSuccessorRequestDesc)
	set(m, "id", protoreflect.ValueOfInt64(x.ID))
	return m
}

func decodeFindSuccessorRequest(pm protoreflect.ProtoMessage) (FindSuccessorRequest, error) {
	m, err := expect(pm, findSuccessorRequestDesc)
	if err != nil {
		return FindSuccessorRequest{}, err
	}
	return FindSuccessorRequest{ID: get(m, "id").Int()}, nil
}

func (x ChordSetKeyRequest) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(chordSetKeyRequestDesc)
	set(m, "key", protoreflect.ValueOfInt64(x.Key))
	set(m, "value", protoreflect.ValueOfBytes(x.Value))
	return m
}

func decodeChordSetKeyRequest(pm protoreflect.ProtoMessage) (ChordSetKeyRequest, error) {
	m, err := expect(pm, chordSetKeyRequestDesc)
	if err != nil {
		return ChordSetKeyRequest{}, err
	}
	return ChordSetKeyRequest{
		Key:   get(m, "key").Int(),
		Value: get(m, "value").Bytes(),
	}, nil
}

func (x LookupRequest) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(lookupRequestDesc)
	set(m, "key", protoreflect.ValueOfInt64(x.Key))
	return m
}

func decodeLookupRequest(pm protoreflect.ProtoMessage) (LookupRequest, error) {
	m, err := expect(pm, lookupRequestDesc)
	if err != nil {
		return LookupRequest{}, err
	}
	return LookupRequest{Key: get(m, "key").Int()}, nil
}

func (x LookupResponse) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(lookupResponseDesc)
	set(m, "value", protoreflect.ValueOfBytes(x.Value))
	return m
}

func decodeLookupResponse(pm protoreflect.ProtoMessage) (LookupResponse, error) {
	m, err := expect(pm, lookupResponseDesc)
	if err != nil {
		return LookupResponse{}, err
	}
	return LookupResponse{Value: get(m, "value").Bytes()}, nil
}

func (x SetKeyRequest) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(setKeyRequestDesc)
	set(m, "key", protoreflect.ValueOfBytes(x.Key))
	set(m, "value", protoreflect.ValueOfBytes(x.Value))
	set(m, "transfer", protoreflect.ValueOfBool(x.Transfer))
	return m
}

func decodeSetKeyRequest(pm protoreflect.ProtoMessage) (SetKeyRequest, error) {
	m, err := expect(pm, setKeyRequestDesc)
	if err != nil {
		return SetKeyRequest{}, err
	}
	return SetKeyRequest{
		Key:      get(m, "key").Bytes(),
		Value:    get(m, "value").Bytes(),
		Transfer: get(m, "transfer").Bool(),
	}, nil
}

func (x SetKeyResponse) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(setKeyResponseDesc)
	setForward(m, x.ForwardNode)
	return m
}

func decodeSetKeyResponse(pm protoreflect.ProtoMessage) (SetKeyResponse, error) {
	m, err := expect(pm, setKeyResponseDesc)
	if err != nil {
		return SetKeyResponse{}, err
	}
	return SetKeyResponse{ForwardNode: getForward(m)}, nil
}

func (x GetKeyRequest) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(getKeyRequestDesc)
	set(m, "key", protoreflect.ValueOfBytes(x.Key))
	return m
}

func decodeGetKeyRequest(pm protoreflect.ProtoMessage) (GetKeyRequest, error) {
	m, err := expect(pm, getKeyRequestDesc)
	if err != nil {
		return GetKeyRequest{}, err
	}
	return GetKeyRequest{Key: get(m, "key").Bytes()}, nil
}

func (x GetKeyResponse) encode() *dynamicpb.Message {
	m := dynamicpb.NewMessage(getKeyResponseDesc)
	set(m, "value", protoreflect.ValueOfBytes(x.Value))
	setForward(m, x.ForwardNode)
	set(m, "pathLength", protoreflect.ValueOfInt32(x.PathLength))
	return m
}

func decodeGetKeyResponse(pm protoreflect.ProtoMessage) (GetKeyResponse, error) {
	m, err := expect(pm, getKeyResponseDesc)
	if err != nil {
		return GetKeyResponse{}, err
	}
	return GetKeyResponse{
		Value:       get(m, "value").Bytes(),
		ForwardNode: getForward(m),
		PathLength:  int32(get(m, "pathLength").Int()),
	}, nil
}

func expect(pm protoreflect.ProtoMessage, want protoreflect.MessageDescriptor) (protoreflect.Message, error) {
	if pm == nil {
		return nil, fmt.Errorf("nil message, want %s", want.FullName())
	}
	m := pm.ProtoReflect()
	if got := m.Descriptor().FullName(); got != want.FullName() {
		return nil, fmt.Errorf("unexpected message %s, want %s", got, want.FullName())
	}
	return m, nil
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(name))
}

func set(m *dynamicpb.Message, name protoreflect.Name, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(name), v)
}

func setForward(m *dynamicpb.Message, fwd *ForwardNode) {
	if fwd == nil {
		return
	}
	node := dynamicpb.NewMessage(dhtNodeDesc)
	set(node, "address", protoreflect.ValueOfString(fwd.Address))
	set(m, "forwardNode", protoreflect.ValueOfMessage(node))
}

func getForward(m protoreflect.Message) *ForwardNode {
	fd := m.Descriptor().Fields().ByName("forwardNode")
	if !m.Has(fd) {
		return nil
	}
	return &ForwardNode{Address: get(m.Get(fd).Message(), "address").String()}
}
