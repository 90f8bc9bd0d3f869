package rpcpb

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Fully qualified service and method names.
const (
	ChordService = "chord.Chord"
	DHTService   = "dht.DHT"

	FindSuccessorMethod = "/chord.Chord/FindSuccessor"
	ChordSetKeyMethod   = "/chord.Chord/SetKey"
	LookupMethod        = "/chord.Chord/Lookup"
	SetKeyMethod        = "/dht.DHT/SetKey"
	GetKeyMethod        = "/dht.DHT/GetKey"
)

var (
	chordFile protoreflect.FileDescriptor
	dhtFile   protoreflect.FileDescriptor

	chordNodeDesc            protoreflect.MessageDescriptor
	findSuccessorRequestDesc protoreflect.MessageDescriptor
	chordSetKeyRequestDesc   protoreflect.MessageDescriptor
	chordSetKeyResponseDesc  protoreflect.MessageDescriptor
	lookupRequestDesc        protoreflect.MessageDescriptor
	lookupResponseDesc       protoreflect.MessageDescriptor

	dhtNodeDesc        protoreflect.MessageDescriptor
	setKeyRequestDesc  protoreflect.MessageDescriptor
	setKeyResponseDesc protoreflect.MessageDescriptor
	getKeyRequestDesc  protoreflect.MessageDescriptor
	getKeyResponseDesc protoreflect.MessageDescriptor
)

func init() {
	chordFile = mustBuild(chordFileProto())
	dhtFile = mustBuild(dhtFileProto())
	mustRegister(chordFile)
	mustRegister(dhtFile)

	msgs := chordFile.Messages()
	chordNodeDesc = msgs.ByName("Node")
	findSuccessorRequestDesc = msgs.ByName("FindSuccessorRequest")
	chordSetKeyRequestDesc = msgs.ByName("SetKeyRequest")
	chordSetKeyResponseDesc = msgs.ByName("SetKeyResponse")
	lookupRequestDesc = msgs.ByName("LookupRequest")
	lookupResponseDesc = msgs.ByName("LookupResponse")

	msgs = dhtFile.Messages()
	dhtNodeDesc = msgs.ByName("Node")
	setKeyRequestDesc = msgs.ByName("SetKeyRequest")
	setKeyResponseDesc = msgs.ByName("SetKeyResponse")
	getKeyRequestDesc = msgs.ByName("GetKeyRequest")
	getKeyResponseDesc = msgs.ByName("GetKeyResponse")
}

// ChordFile returns the descriptor of chord.proto.
func ChordFile() protoreflect.FileDescriptor { return chordFile }

// DHTFile returns the descriptor of dht.proto.
func DHTFile() protoreflect.FileDescriptor { return dhtFile }

func mustBuild(fdp *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fdp, new(protoregistry.Files))
	if err != nil {
		panic(fmt.Sprintf("rpcpb: invalid descriptor %s: %v", fdp.GetName(), err))
	}
	return fd
}

// mustRegister publishes fd in the global registry so that gRPC
// reflection can describe the services.
func mustRegister(fd protoreflect.FileDescriptor) {
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("rpcpb: register %s: %v", fd.Path(), err))
	}
}

func chordFileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("chord.proto"),
		Package: proto.String("chord"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("Node",
				field("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				field("identifier", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message("FindSuccessorRequest",
				field("id", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message("SetKeyRequest",
				field("key", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				field("value", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
			),
			message("SetKeyResponse"),
			message("LookupRequest",
				field("key", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message("LookupResponse",
				field("value", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Chord"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("FindSuccessor", ".chord.FindSuccessorRequest", ".chord.Node"),
				method("SetKey", ".chord.SetKeyRequest", ".chord.SetKeyResponse"),
				method("Lookup", ".chord.LookupRequest", ".chord.LookupResponse"),
			},
		}},
	}
}

func dhtFileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("dht.proto"),
		Package: proto.String("dht"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("Node",
				field("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			// Keys are strings on the server; bytes shares the wire encoding
			// and lets clients send opaque keys.
			message("SetKeyRequest",
				field("key", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				field("value", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				field("transfer", 3, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
			),
			message("SetKeyResponse",
				messageField("forwardNode", 1, ".dht.Node"),
			),
			message("GetKeyRequest",
				field("key", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
			),
			message("GetKeyResponse",
				field("value", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				messageField("forwardNode", 2, ".dht.Node"),
				field("pathLength", 3, descriptorpb.FieldDescriptorProto_TYPE_INT32),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("DHT"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("SetKey", ".dht.SetKeyRequest", ".dht.SetKeyResponse"),
				method("GetKey", ".dht.GetKeyRequest", ".dht.GetKeyResponse"),
			},
		}},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name:  proto.String(name),
		Field: fields,
	}
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
	}
}

func messageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := field(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String(typeName)
	return f
}

func method(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(in),
		OutputType: proto.String(out),
	}
}
