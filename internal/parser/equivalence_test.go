package parser

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jptrs93/protohttp/internal/ir"
	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var sharedSubset = map[string]string{
	"orders/orders.proto": `syntax = "proto3";

package shop.orders;

import "common/types.proto";
import "google/protobuf/timestamp.proto";

enum Status {
  STATUS_UNSPECIFIED = 0;
  STATUS_OPEN = 1;
  STATUS_CLOSED = 2;
}

message Order {
  string id = 1;
  repeated Line lines = 2;
  shop.common.Money total = 3;
  Status status = 4;
  google.protobuf.Timestamp created_at = 5;
  oneof contact {
    string email = 6;
    string phone = 7;
  }

  message Line {
    string sku = 1;
    uint32 quantity = 2;
    Kind kind = 3;

    enum Kind {
      KIND_UNSPECIFIED = 0;
      KIND_PHYSICAL = 1;
    }
  }
}

message GetOrderRequest {
  string id = 1;
}

service OrderService {
  rpc GetOrder(GetOrderRequest) returns (Order);
  rpc GetOrderV2(GetOrderRequest) returns (Order);
  rpc StreamOrders(GetOrderRequest) returns (stream Order);
}
`,
	"common/types.proto": `syntax = "proto3";

package shop.common;

message Money {
  int64 units = 1;
  string currency = 2;
  bytes memo = 3;
  double rate = 4;
  sint64 delta = 5;
}
`,
}

var nestedImports = map[string]string{
	"a.proto": `syntax = "proto3";

package nested.a;

import "sub/b.proto";

message A {
  nested.b.B b = 1;
}
`,
	"sub/b.proto": `syntax = "proto3";

package nested.b;

import "c.proto";

message B {
  nested.c.C c = 1;
}
`,
	"sub/c.proto": `syntax = "proto3";

package nested.c;

message C {
  string note = 1;
}
`,
}

// shape compares raw models without positions, which depend on source
// info, and without references, which the text strategy leaves relative.
var shape = cmp.Options{
	cmpopts.IgnoreFields(schema.Message{}, "Line"),
	cmpopts.IgnoreFields(schema.Field{}, "Line", "Type"),
	cmpopts.IgnoreFields(schema.Enum{}, "Line"),
	cmpopts.IgnoreFields(schema.Service{}, "Line"),
	cmpopts.IgnoreFields(schema.Method{}, "Line", "Input", "Output"),
}

func TestStrategiesAgree(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		inputs []string
		count  int
	}{
		{
			name:   "shared subset",
			files:  sharedSubset,
			inputs: []string{"common/types.proto", "orders/orders.proto"},
			count:  2,
		},
		{
			name:   "import next to importer",
			files:  nestedImports,
			inputs: []string{"a.proto"},
			count:  3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files)
			var inputs []string
			for _, in := range tt.inputs {
				inputs = append(inputs, filepath.Join(dir, filepath.FromSlash(in)))
			}

			descriptor := &DescriptorParser{Roots: []string{dir}, Jobs: 2}
			text := &TextParser{Roots: []string{dir}}

			fromDescriptor, err := descriptor.Parse(context.Background(), inputs)
			require.NoError(t, err)
			fromText, err := text.Parse(context.Background(), inputs)
			require.NoError(t, err)
			require.Len(t, fromDescriptor.Files, tt.count)

			if diff := cmp.Diff(fromDescriptor, fromText, shape); diff != "" {
				t.Fatalf("raw model mismatch (-descriptor +text):\n%s", diff)
			}

			opts := ir.BuildOptions{Root: dir}
			progDescriptor, err := ir.Build(fromDescriptor, opts)
			require.NoError(t, err)
			progText, err := ir.Build(fromText, opts)
			require.NoError(t, err)
			if diff := cmp.Diff(progDescriptor, progText); diff != "" {
				t.Fatalf("resolved model mismatch (-descriptor +text):\n%s", diff)
			}
		})
	}
}

func TestDescriptorParserMapFieldIsFlagged(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.proto": "syntax = \"proto3\";\nmessage A {\n  map<string, int32> counts = 1;\n}\n",
	})
	p := &DescriptorParser{}
	set, err := p.Parse(context.Background(), []string{filepath.Join(dir, "a.proto")})
	require.NoError(t, err)
	require.Len(t, set.Files, 1)
	msg := set.Files[0].Messages[0]
	require.Empty(t, msg.Messages)
	require.True(t, msg.Fields[0].Map)
}

func TestDescriptorParserReportsSyntaxErrors(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.proto": "syntax = \"proto3\";\nmessage A {\n  string name = ;\n}\n",
	})
	p := &DescriptorParser{}
	_, err := p.Parse(context.Background(), []string{filepath.Join(dir, "a.proto")})
	var target *schema.ParseError
	require.ErrorAs(t, err, &target)
	require.Equal(t, 3, target.Line)
	require.Equal(t, filepath.Join(dir, "a.proto"), target.File)
}
