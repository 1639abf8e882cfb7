package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

// clientContextToolNameKey is the custom key AgentCore sets on the Lambda
// client context when it invokes a gateway target.
const clientContextToolNameKey = "bedrockAgentCoreToolName"

// toolNameSeparator splits the gateway target prefix from the tool name in
// qualified names like "quick-suite-docs___s3_read_object".
const toolNameSeparator = "___"

// Invocation is a parsed gateway tool invocation.
type Invocation struct {
	// ToolName is the bare tool name with any target prefix removed.
	ToolName string
	// Target is the gateway target prefix, empty when the name was unqualified.
	Target string
	// Arguments is the event payload with routing metadata removed.
	Arguments json.RawMessage
	// PayloadBytes is the size of the raw event, used for abuse checks.
	PayloadBytes int
	SourceIP     string
	RequestID    string
	// AuthToken is the forwarded bearer token, empty when the gateway did
	// not pass one through.
	AuthToken string
}

// Routing metadata keys stripped from the event before it becomes tool
// arguments.
var metadataKeys = []string{
	clientContextToolNameKey,
	"toolName",
	"tool_name",
	"headers",
	"requestContext",
}

// ParseInvocation extracts the tool name and arguments from a raw gateway
// event. The tool name is resolved in order from the Lambda client context,
// the event body, and finally the forwarded headers.
func ParseInvocation(ctx context.Context, raw json.RawMessage) (*Invocation, error) {
	var event map[string]json.RawMessage
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, NewToolError(CodeInvalidRequest, "event payload is not a JSON object")
	}

	inv := &Invocation{PayloadBytes: len(raw)}

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		inv.RequestID = lc.AwsRequestID
		if name := strings.TrimSpace(lc.ClientContext.Custom[clientContextToolNameKey]); name != "" {
			inv.Target, inv.ToolName = splitQualifiedToolName(name)
		}
	}

	headers := decodeStringMap(event["headers"])
	if inv.ToolName == "" {
		for _, key := range []string{clientContextToolNameKey, "toolName", "tool_name"} {
			if name := decodeString(event[key]); name != "" {
				inv.Target, inv.ToolName = splitQualifiedToolName(name)
				break
			}
		}
	}
	if inv.ToolName == "" {
		if name := strings.TrimSpace(headers[strings.ToLower(clientContextToolNameKey)]); name != "" {
			inv.Target, inv.ToolName = splitQualifiedToolName(name)
		}
	}
	if inv.ToolName == "" {
		return nil, NewToolError(CodeInvalidRequest, "tool name missing from invocation")
	}

	inv.SourceIP = resolveSourceIP(event, headers)
	inv.AuthToken = strings.TrimSpace(headers["authorization"])

	args := make(map[string]json.RawMessage, len(event))
	for k, v := range event {
		args[k] = v
	}
	for _, key := range metadataKeys {
		delete(args, key)
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, NewToolError(CodeInvalidRequest, "event payload could not be normalized")
	}
	inv.Arguments = encoded

	return inv, nil
}

func splitQualifiedToolName(name string) (target, tool string) {
	if idx := strings.LastIndex(name, toolNameSeparator); idx >= 0 {
		return name[:idx], name[idx+len(toolNameSeparator):]
	}
	return "", name
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func decodeStringMap(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func resolveSourceIP(event map[string]json.RawMessage, headers map[string]string) string {
	if fwd := headers["x-forwarded-for"]; fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}

	var rc struct {
		Identity struct {
			SourceIP string `json:"sourceIp"`
		} `json:"identity"`
	}
	if raw, ok := event["requestContext"]; ok {
		if err := json.Unmarshal(raw, &rc); err == nil {
			return strings.TrimSpace(rc.Identity.SourceIP)
		}
	}
	return ""
}
