package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func lookup(set *schema.Set, path string) *schema.File {
	if i, ok := set.Index(path); ok {
		return set.Files[i]
	}
	return nil
}

const tradeProto = `// Trading API.
syntax = "proto3";

package acme.trade;

import "common/money.proto";
import 'google/protobuf/timestamp.proto';

option java_package = "com.acme.trade";
option (custom.opt) = { key: "v" nested { a: 1 } };

/* Side of an order. */
enum Side {
  option allow_alias = true;
  SIDE_UNSPECIFIED = 0;
  BUY = 1 [deprecated = true];
  SELL = 2;
  reserved 5 to 9;
}

message Order {
  string ticker = 1;
  int32 quantity = 2 [json_name = "qty"];
  acme.common.Money price = 3;
  Side side = 4;
  repeated Leg legs = 5;
  google.protobuf.Timestamp created_at = 6;
  optional string note = 7;
  oneof target {
    string account_id = 8;
    int64 desk_id = 9;
  }
  reserved 20, 21;
  reserved "old";

  message Leg {
    string account_number = 1;
    Kind kind = 2;
    enum Kind {
      KIND_UNSPECIFIED = 0;
      CASH = 1;
    }
  }
}

message Ack {
  bool ok = 1;
}

service TradeService {
  option deprecated = true;
  rpc PlaceOrder(Order) returns (Ack);
  rpc PlaceOrderV2(Order) returns (Ack) {
    option (google.api.http) = { post: "/v2/orders" body: "*" };
  }
  rpc Watch(Order) returns (stream Ack);
  rpc Upload(stream Order) returns (Ack) {}
}
`

const moneyProto = `syntax = "proto3";
package acme.common;

message Money {
  int64 units = 1;
  string currency_code = 2;
}
`

func TestTextParserParsesShape(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"trade.proto":        tradeProto,
		"common/money.proto": moneyProto,
	})

	p := &TextParser{Roots: []string{dir}}
	set, err := p.Parse(context.Background(), []string{filepath.Join(dir, "trade.proto")})
	require.NoError(t, err)
	require.Len(t, set.Files, 2)

	money := lookup(set, filepath.Join(dir, "common", "money.proto"))
	require.NotNil(t, money)
	assert.Equal(t, "common/money.proto", money.Name)
	assert.False(t, set.IsInput(money.Path))

	f := lookup(set, filepath.Join(dir, "trade.proto"))
	require.NotNil(t, f)
	assert.Equal(t, "trade.proto", f.Name)
	assert.Equal(t, "acme.trade", f.Package)
	require.Len(t, f.Imports, 2)
	assert.Equal(t, money.Path, f.Imports[0].Resolved)
	assert.Equal(t, "google/protobuf/timestamp.proto", f.Imports[1].Path)
	assert.Empty(t, f.Imports[1].Resolved)

	require.Len(t, f.Enums, 1)
	assert.Equal(t, []schema.EnumValue{{Name: "SIDE_UNSPECIFIED", Number: 0}, {Name: "BUY", Number: 1}, {Name: "SELL", Number: 2}}, f.Enums[0].Values)

	require.Len(t, f.Messages, 2)
	order := f.Messages[0]
	assert.Equal(t, "Order", order.Name)
	var names []string
	for _, fld := range order.Fields {
		names = append(names, fld.Name)
	}
	assert.Equal(t, []string{"ticker", "quantity", "price", "side", "legs", "created_at", "note", "account_id", "desk_id"}, names)
	assert.Equal(t, "acme.common.Money", order.Fields[2].Type)
	assert.True(t, order.Fields[4].Repeated)
	assert.Equal(t, "google.protobuf.Timestamp", order.Fields[5].Type)
	assert.Equal(t, 22, order.Fields[0].Line)

	require.Len(t, order.Messages, 1)
	leg := order.Messages[0]
	require.Len(t, leg.Enums, 1)
	assert.Equal(t, "Kind", leg.Enums[0].Name)

	require.Len(t, f.Services, 1)
	methods := f.Services[0].Methods
	require.Len(t, methods, 4)
	assert.Equal(t, "PlaceOrderV2", methods[1].Name)
	assert.False(t, methods[1].ClientStreaming || methods[1].ServerStreaming)
	assert.True(t, methods[2].ServerStreaming)
	assert.True(t, methods[3].ClientStreaming)
	assert.Equal(t, "Order", methods[3].Input)
}

func TestTextParserErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		check func(t *testing.T, dir string, err error)
	}{
		{
			name: "unresolved import",
			files: map[string]string{
				"a.proto": "syntax = \"proto3\";\n\nimport \"missing/thing.proto\";\n",
			},
			check: func(t *testing.T, dir string, err error) {
				var target *schema.ParseError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, filepath.Join(dir, "a.proto"), target.File)
				assert.Equal(t, 3, target.Line)
				assert.Contains(t, err.Error(), `"missing/thing.proto"`)
			},
		},
		{
			name: "import cycle",
			files: map[string]string{
				"a.proto": "syntax = \"proto3\";\nimport \"b.proto\";\n",
				"b.proto": "syntax = \"proto3\";\nimport \"a.proto\";\n",
			},
			check: func(t *testing.T, dir string, err error) {
				var target *schema.ParseError
				require.ErrorAs(t, err, &target)
				assert.Contains(t, err.Error(), "import cycle")
			},
		},
		{
			name: "group",
			files: map[string]string{
				"a.proto": "syntax = \"proto2\";\nmessage A {\n  optional group G = 1 {}\n}\n",
			},
			check: func(t *testing.T, dir string, err error) {
				var target *schema.UnsupportedFeatureError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, 3, target.Line)
			},
		},
		{
			name: "malformed field",
			files: map[string]string{
				"a.proto": "syntax = \"proto3\";\nmessage A {\n  string name = ;\n}\n",
			},
			check: func(t *testing.T, dir string, err error) {
				var target *schema.ParseError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, 3, target.Line)
				assert.Contains(t, err.Error(), "expected field number")
			},
		},
		{
			name: "enum value out of range",
			files: map[string]string{
				"a.proto": "syntax = \"proto3\";\nenum E {\n  ZERO = 0;\n  LOW = -2147483649;\n}\n",
			},
			check: func(t *testing.T, dir string, err error) {
				var target *schema.ParseError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, 4, target.Line)
				assert.Contains(t, err.Error(), "out of range")
			},
		},
		{
			name: "unterminated message",
			files: map[string]string{
				"a.proto": "syntax = \"proto3\";\nmessage A {\n  string name = 1;\n",
			},
			check: func(t *testing.T, dir string, err error) {
				assert.Contains(t, err.Error(), "unterminated message A")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tc.files)
			p := &TextParser{Roots: []string{dir}}
			_, err := p.Parse(context.Background(), []string{filepath.Join(dir, "a.proto")})
			require.Error(t, err)
			tc.check(t, dir, err)
		})
	}
}

func TestTextParserEnumValueBounds(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.proto": "syntax = \"proto2\";\nenum E {\n  MIN = -2147483648;\n  MAX = 2147483647;\n  HEX = 0x10;\n}\n",
	})
	p := &TextParser{}
	set, err := p.Parse(context.Background(), []string{filepath.Join(dir, "a.proto")})
	require.NoError(t, err)
	assert.Equal(t, []schema.EnumValue{
		{Name: "MIN", Number: -2147483648},
		{Name: "MAX", Number: 2147483647},
		{Name: "HEX", Number: 16},
	}, set.Files[0].Enums[0].Values)
}

func TestTextParserMapFieldIsFlagged(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.proto": "syntax = \"proto3\";\nmessage A {\n  map<string, int32> counts = 1;\n}\n",
	})
	p := &TextParser{}
	set, err := p.Parse(context.Background(), []string{filepath.Join(dir, "a.proto")})
	require.NoError(t, err)
	fld := set.Files[0].Messages[0].Fields[0]
	assert.True(t, fld.Map)
	assert.Equal(t, "int32", fld.Type)
	assert.Equal(t, 3, fld.Line)
}

func TestTextParserImportSearchOrder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"svc/a.proto":      "syntax = \"proto3\";\nimport \"shared.proto\";\n",
		"svc/shared.proto": "syntax = \"proto3\";\npackage local;\n",
		"shared.proto":     "syntax = \"proto3\";\npackage global;\n",
		"lib/only.proto":   "syntax = \"proto3\";\npackage lib;\n",
		"svc/b.proto":      "syntax = \"proto3\";\nimport \"lib/only.proto\";\n",
	})
	p := &TextParser{Roots: []string{root}}
	set, err := p.Parse(context.Background(), []string{
		filepath.Join(root, "svc", "a.proto"),
		filepath.Join(root, "svc", "b.proto"),
	})
	require.NoError(t, err)

	a := lookup(set, filepath.Join(root, "svc", "a.proto"))
	require.NotNil(t, a)
	assert.Equal(t, filepath.Join(root, "svc", "shared.proto"), a.Imports[0].Resolved)

	b := lookup(set, filepath.Join(root, "svc", "b.proto"))
	require.NotNil(t, b)
	assert.Equal(t, filepath.Join(root, "lib", "only.proto"), b.Imports[0].Resolved)
	assert.Nil(t, lookup(set, filepath.Join(root, "shared.proto")))
}
