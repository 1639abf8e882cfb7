package actuarial

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/tools/session"
)

// Tool names as advertised through the gateway target.
const (
	ToolScoreFraudRisk     = "score_fraud_risk"
	ToolDetectLitigation   = "detect_litigation"
	ToolAnalyzeRiskFactors = "analyze_risk_factors"
	ToolBuildLossTriangles = "build_loss_triangles"
	ToolCalculateReserves  = "calculate_reserves"
	ToolMonitorDevelopment = "monitor_development"
)

// analysisArgs is the shared tool input: either a session ID pointing at a
// prior run_query result or inline claim records, plus optional per-tool
// configuration overrides applied on top of the defaults.
type analysisArgs struct {
	SessionID        string          `json:"session_id"`
	Data             []Claim         `json:"data"`
	FraudConfig      json.RawMessage `json:"fraud_config"`
	LitigationConfig json.RawMessage `json:"litigation_config"`
	MonitoringConfig json.RawMessage `json:"monitoring_config"`
}

// triangleResult wraps a persisted triangle set with its session envelope.
type triangleResult struct {
	EventType string `json:"event_type"`
	SessionID string `json:"session_id,omitempty"`
	*TriangleSet
}

// Register wires the actuarial analysis tools into the registry.
func Register(registry *gateway.ToolRegistry, svc *Service) {
	registry.MustRegister(gateway.ToolDef{
		Name:        ToolScoreFraudRisk,
		Description: "Score claims for fraud indicators and organized fraud patterns.",
		InputSchema: fraudSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeAnalysisArgs(args)
		if err != nil {
			return nil, err
		}
		cfg := DefaultFraudConfig()
		if err := applyConfig(in.FraudConfig, &cfg, "fraud_config"); err != nil {
			return nil, err
		}
		claims, err := svc.resolveClaims(ctx, in)
		if err != nil {
			return nil, err
		}
		return ScoreFraudRisk(claims, cfg, svc.clock.Now()), nil
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolDetectLitigation,
		Description: "Detect litigation and friction signals in claim narratives.",
		InputSchema: litigationSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeAnalysisArgs(args)
		if err != nil {
			return nil, err
		}
		cfg := DefaultLitigationConfig()
		if err := applyConfig(in.LitigationConfig, &cfg, "litigation_config"); err != nil {
			return nil, err
		}
		claims, err := svc.resolveClaims(ctx, in)
		if err != nil {
			return nil, err
		}
		return DetectLitigation(claims, cfg), nil
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolAnalyzeRiskFactors,
		Description: "Segment the portfolio by risk drivers and report loss ratios, significance, and insights.",
		InputSchema: sessionSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeAnalysisArgs(args)
		if err != nil {
			return nil, err
		}
		claims, err := svc.resolveClaims(ctx, in)
		if err != nil {
			return nil, err
		}
		return AnalyzeRiskFactors(claims)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolBuildLossTriangles,
		Description: "Build incremental accident-year loss development triangles and persist them for reserving.",
		InputSchema: sessionSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeAnalysisArgs(args)
		if err != nil {
			return nil, err
		}
		claims, err := svc.resolveClaims(ctx, in)
		if err != nil {
			return nil, err
		}
		set, err := BuildLossTriangles(claims)
		if err != nil {
			return nil, err
		}
		if in.SessionID != "" {
			if err := svc.saveTriangles(ctx, in.SessionID, set); err != nil {
				return nil, err
			}
		}
		return triangleResult{EventType: "triangle_result", SessionID: in.SessionID, TriangleSet: set}, nil
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolCalculateReserves,
		Description: "Calculate IBNR reserves with Chain Ladder and Bornhuetter-Ferguson methodologies.",
		InputSchema: sessionSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeAnalysisArgs(args)
		if err != nil {
			return nil, err
		}
		set, err := svc.trianglesForSession(ctx, in)
		if err != nil {
			return nil, err
		}
		return CalculateReserves(set, svc.rng)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolMonitorDevelopment,
		Description: "Compute portfolio KPIs, threshold alerts, and dashboard metrics.",
		InputSchema: monitoringSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decodeAnalysisArgs(args)
		if err != nil {
			return nil, err
		}
		cfg := DefaultMonitoringConfig()
		if err := applyConfig(in.MonitoringConfig, &cfg, "monitoring_config"); err != nil {
			return nil, err
		}
		claims, err := svc.resolveClaims(ctx, in)
		if err != nil {
			return nil, err
		}
		return MonitorDevelopment(claims, cfg, svc.clock.Now()), nil
	})
}

// resolveClaims prefers inline records and otherwise loads the session's
// unloaded result set.
func (s *Service) resolveClaims(ctx context.Context, in analysisArgs) ([]Claim, error) {
	if len(in.Data) > 0 {
		return in.Data, nil
	}
	return s.LoadClaims(ctx, in.SessionID)
}

// trianglesForSession reuses triangles persisted by an earlier
// build_loss_triangles call, building and persisting them when absent.
func (s *Service) trianglesForSession(ctx context.Context, in analysisArgs) (*TriangleSet, error) {
	if in.SessionID != "" {
		raw, err := s.sessions.GetTriangles(ctx, in.SessionID)
		if err == nil {
			var set TriangleSet
			if err := json.Unmarshal(raw, &set); err != nil {
				return nil, gateway.NewToolError(gateway.CodeInternalError, "stored triangle data is corrupt")
			}
			return &set, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, gateway.NewToolError(gateway.CodeInternalError, "failed to load stored triangles")
		}
	}

	claims, err := s.resolveClaims(ctx, in)
	if err != nil {
		return nil, err
	}
	set, err := BuildLossTriangles(claims)
	if err != nil {
		return nil, err
	}
	if in.SessionID != "" {
		if err := s.saveTriangles(ctx, in.SessionID, set); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (s *Service) saveTriangles(ctx context.Context, sessionID string, set *TriangleSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return gateway.NewToolError(gateway.CodeInternalError, "failed to encode triangle data")
	}
	if err := s.sessions.SaveTriangles(ctx, sessionID, raw); err != nil {
		return gateway.NewToolError(gateway.CodeInternalError, "failed to store triangle data")
	}
	return nil
}

func decodeAnalysisArgs(args json.RawMessage) (analysisArgs, error) {
	var in analysisArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return analysisArgs{}, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object with session_id or data")
		}
	}
	return in, nil
}

// applyConfig overlays a partial JSON override onto the default config.
func applyConfig(raw json.RawMessage, cfg any, name string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return gateway.NewToolError(gateway.CodeValidationError, name+" must be a JSON object")
	}
	return nil
}

var sessionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "session_id": {
      "type": "string",
      "description": "Session ID from a prior run_query call"
    },
    "data": {
      "type": "array",
      "items": {"type": "object"},
      "description": "Inline claim records; used instead of session data when provided"
    }
  }
}`)

var fraudSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "session_id": {
      "type": "string",
      "description": "Session ID from a prior run_query call"
    },
    "data": {
      "type": "array",
      "items": {"type": "object"},
      "description": "Inline claim records; used instead of session data when provided"
    },
    "fraud_config": {
      "type": "object",
      "description": "Partial override of the fraud thresholds and score weights"
    }
  }
}`)

var litigationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "session_id": {
      "type": "string",
      "description": "Session ID from a prior run_query call"
    },
    "data": {
      "type": "array",
      "items": {"type": "object"},
      "description": "Inline claim records; used instead of session data when provided"
    },
    "litigation_config": {
      "type": "object",
      "description": "Partial override of the litigation thresholds and signal weights"
    }
  }
}`)

var monitoringSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "session_id": {
      "type": "string",
      "description": "Session ID from a prior run_query call"
    },
    "data": {
      "type": "array",
      "items": {"type": "object"},
      "description": "Inline claim records; used instead of session data when provided"
    },
    "monitoring_config": {
      "type": "object",
      "description": "Partial override of the KPI targets and alert bounds"
    }
  }
}`)
