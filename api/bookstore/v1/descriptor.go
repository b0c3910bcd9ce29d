package bookstorev1

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FileName — путь описания контракта в реестре protobuf.
const FileName = "bookstore/v1/checkout.proto"

const protoPackage = "bookstore.v1"

// File — protobuf-описание сообщений и сервиса. Имена полей и json_name совпадают
// с JSON-тегами структур из messages.go, поэтому gRPC reflection показывает
// клиентам ровно ту форму, которую пишет JSON-кодек.
var File protoreflect.FileDescriptor

func init() {
	fd, err := buildFile(protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("bookstorev1: build file descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("bookstorev1: register file descriptor: %v", err))
	}
	File = fd
}

func buildFile(resolver protodesc.Resolver) (protoreflect.FileDescriptor, error) {
	timestamp := timestamppb.File_google_protobuf_timestamp_proto

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String(protoPackage),
		Syntax:     proto.String("proto3"),
		Dependency: []string{timestamp.Path()},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/vladislavdragonenkov/bookstore/api/bookstore/v1;bookstorev1"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("Order",
				stringField("id"),
				stringField("order_number"),
				stringField("customer_id"),
				stringField("status"),
				stringField("total_amount"),
				stringField("currency"),
				repeated(messageField("lines", "OrderLine")),
				int64Field("version"),
				timestampField("placed_at"),
				timestampField("locked_at"),
				timestampField("created_at"),
				timestampField("updated_at"),
			),
			message("OrderLine",
				stringField("id"),
				int64Field("book_id"),
				int64Field("warehouse_id"),
				int32Field("quantity"),
				stringField("unit_price"),
				stringField("subtotal"),
			),
			message("AuditLogEntry",
				stringField("id"),
				stringField("action"),
				stringField("description"),
				stringField("order_id"),
				stringField("actor_id"),
				timestampField("created_at"),
			),
			message("CheckoutRequest", int64Field("cart_id"), stringField("order_number")),
			message("CheckoutResponse", messageField("order", "Order")),
			message("GetOrderRequest", stringField("order_number")),
			message("GetOrderResponse", messageField("order", "Order")),
			message("ListCustomerOrdersRequest", stringField("customer_id"), int32Field("limit")),
			message("ListCustomerOrdersResponse", repeated(messageField("orders", "Order"))),
			message("TransitionOrderRequest", stringField("order_number"), stringField("status")),
			message("TransitionOrderResponse", messageField("order", "Order")),
			message("DeleteOrderRequest", stringField("order_number")),
			message("DeleteOrderResponse", stringField("order_number")),
			message("ListAuditLogRequest", stringField("order_id"), int32Field("limit")),
			message("ListAuditLogResponse", repeated(messageField("entries", "AuditLogEntry"))),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("CheckoutService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Checkout"),
				method("GetOrder"),
				method("ListCustomerOrders"),
				method("TransitionOrder"),
				method("DeleteOrder"),
				method("ListAuditLog"),
			},
		}},
	}
	return protodesc.NewFile(fdp, resolver)
}

// message нумерует поля по порядку объявления.
func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	for i, f := range fields {
		f.Number = proto.Int32(int32(i + 1))
	}
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func field(name string, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Type:     typ.Enum(),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

func stringField(name string) *descriptorpb.FieldDescriptorProto {
	return field(name, descriptorpb.FieldDescriptorProto_TYPE_STRING, "")
}

func int64Field(name string) *descriptorpb.FieldDescriptorProto {
	return field(name, descriptorpb.FieldDescriptorProto_TYPE_INT64, "")
}

func int32Field(name string) *descriptorpb.FieldDescriptorProto {
	return field(name, descriptorpb.FieldDescriptorProto_TYPE_INT32, "")
}

func messageField(name, msg string) *descriptorpb.FieldDescriptorProto {
	return field(name, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "."+protoPackage+"."+msg)
}

func timestampField(name string) *descriptorpb.FieldDescriptorProto {
	full := (&timestamppb.Timestamp{}).ProtoReflect().Descriptor().FullName()
	return field(name, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "."+string(full))
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func method(name string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + protoPackage + "." + name + "Request"),
		OutputType: proto.String("." + protoPackage + "." + name + "Response"),
	}
}
