package s3crud

import (
	"context"
	"encoding/json"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// Tool names as advertised through the gateway target.
const (
	ToolCreateObject = "s3_create_object"
	ToolReadObject   = "s3_read_object"
	ToolUpdateObject = "s3_update_object"
	ToolDeleteObject = "s3_delete_object"
)

type writeArgs struct {
	Key      string         `json:"key"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type keyArgs struct {
	Key string `json:"key"`
}

// Register wires the four CRUD tools into the registry.
func Register(registry *gateway.ToolRegistry, svc *Service) {
	registry.MustRegister(gateway.ToolDef{
		Name:        ToolCreateObject,
		Description: "Create an object in the document bucket.",
		InputSchema: writeSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeWriteArgs(args)
		if err != nil {
			return nil, err
		}
		return svc.Create(ctx, in.Key, in.Content, in.Metadata)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolReadObject,
		Description: "Read an object from the document bucket. Binary content is returned base64 encoded.",
		InputSchema: keySchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeKeyArgs(args)
		if err != nil {
			return nil, err
		}
		return svc.Read(ctx, in.Key)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolUpdateObject,
		Description: "Overwrite an existing object in the document bucket.",
		InputSchema: writeSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeWriteArgs(args)
		if err != nil {
			return nil, err
		}
		return svc.Update(ctx, in.Key, in.Content, in.Metadata)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolDeleteObject,
		Description: "Delete an object from the document bucket.",
		InputSchema: keySchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeKeyArgs(args)
		if err != nil {
			return nil, err
		}
		return svc.Delete(ctx, in.Key)
	})
}

func decodeWriteArgs(args json.RawMessage) (writeArgs, error) {
	var in writeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return writeArgs{}, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object with key and content")
	}
	return in, nil
}

func decodeKeyArgs(args json.RawMessage) (keyArgs, error) {
	var in keyArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return keyArgs{}, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object with key")
	}
	return in, nil
}

var writeSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "key": {
      "type": "string",
      "description": "Object key within the bucket",
      "maxLength": 1024
    },
    "content": {
      "type": "string",
      "description": "Object content"
    },
    "metadata": {
      "type": "object",
      "description": "Optional string metadata stored with the object",
      "additionalProperties": {"type": "string"}
    }
  },
  "required": ["key", "content"]
}`)

var keySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "key": {
      "type": "string",
      "description": "Object key within the bucket",
      "maxLength": 1024
    }
  },
  "required": ["key"]
}`)
