package gateway

import (
	"encoding/json"
	"time"

	"github.com/haasonsaas/aide/internal/canvas"
	"github.com/haasonsaas/aide/pkg/models"
)

// Client-to-server frame types.
const (
	frameC2SPing       = "c2s:ping"
	frameC2SMessage    = "c2s:message"
	frameC2SClick      = "c2s:click"
	frameC2SFormSubmit = "c2s:form_submit"
	frameC2SDrag       = "c2s:drag"
	frameC2SAbort      = "c2s:abort"
)

// Server-to-client frame types.
const (
	frameS2CPong           = "s2c:pong"
	frameS2CAgentStatus    = "s2c:agent:status"
	frameS2CTextDelta      = "s2c:text:delta"
	frameS2CTextComplete   = "s2c:text:complete"
	frameS2CToolStart      = "s2c:tool:start"
	frameS2CToolProgress   = "s2c:tool:progress"
	frameS2CToolEnd        = "s2c:tool:end"
	frameS2CCanvasSnapshot = "s2c:canvas:snapshot"
	frameS2CCanvasChange   = "s2c:canvas:change"
	frameS2CError          = "s2c:error"
)

// Agent status values surfaced to clients.
const (
	statusIdle          = "idle"
	statusThinking      = "thinking"
	statusStreaming     = "streaming"
	statusToolExecuting = "tool_executing"
	statusComplete      = "complete"
	statusError         = "error"
)

// Error codes carried by s2c:error frames.
const (
	errCodeParse     = "PARSE_ERROR"
	errCodeSchema    = "SCHEMA_ERROR"
	errCodeForbidden = "FORBIDDEN"
	errCodeCanvas    = "CANVAS_ERROR"
	errCodeDispatch  = "DISPATCH_ERROR"
)

// c2sFrame is the envelope for client frames. Exactly the fields for the
// declared type are read; schemas reject the rest.
type c2sFrame struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	NodeID string          `json:"node_id,omitempty"`
	Action string          `json:"action,omitempty"`
	Fields json.RawMessage `json:"fields,omitempty"`
	X      float64         `json:"x,omitempty"`
	Y      float64         `json:"y,omitempty"`
}

// s2cFrame is the envelope for server frames. One payload group is set
// per type.
type s2cFrame struct {
	Type string `json:"type"`

	Status    string           `json:"status,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Delta     string           `json:"delta,omitempty"`
	Text      string           `json:"text,omitempty"`
	Tool      *toolFrame       `json:"tool,omitempty"`
	Snapshot  *canvas.Snapshot `json:"snapshot,omitempty"`
	Change    *canvas.Change   `json:"change,omitempty"`
	Code      string           `json:"code,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp int64            `json:"ts,omitempty"`
}

// toolFrame mirrors one tool invocation phase on the wire.
type toolFrame struct {
	CallID   string          `json:"call_id"`
	Name     string          `json:"name,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Progress string          `json:"progress,omitempty"`
	Success  *bool           `json:"success,omitempty"`
	Output   string          `json:"output,omitempty"`
	Elapsed  int64           `json:"elapsed_ms,omitempty"`
}

func pongFrame(now time.Time) s2cFrame {
	return s2cFrame{Type: frameS2CPong, Timestamp: now.UnixMilli()}
}

func statusFrame(sessionID, status string) s2cFrame {
	return s2cFrame{Type: frameS2CAgentStatus, SessionID: sessionID, Status: status}
}

func errorFrame(code, message string) s2cFrame {
	return s2cFrame{Type: frameS2CError, Code: code, Message: message}
}

func snapshotFrame(snapshot canvas.Snapshot) s2cFrame {
	return s2cFrame{Type: frameS2CCanvasSnapshot, Snapshot: &snapshot}
}

func changeFrame(change canvas.Change) s2cFrame {
	return s2cFrame{Type: frameS2CCanvasChange, Change: &change}
}

// framesForEvent translates one agent event into the wire frames it
// produces. Status frames come first; the bridge drops consecutive
// duplicates.
func framesForEvent(event *models.AgentEvent) []s2cFrame {
	if event == nil {
		return nil
	}
	sid := event.SessionID
	switch event.Type {
	case models.EventThinking:
		return []s2cFrame{statusFrame(sid, statusThinking)}

	case models.EventText:
		frames := []s2cFrame{statusFrame(sid, statusStreaming)}
		if event.Text != nil && event.Text.Delta != "" {
			frames = append(frames, s2cFrame{Type: frameS2CTextDelta, SessionID: sid, Delta: event.Text.Delta})
		}
		return frames

	case models.EventToolStart:
		frames := []s2cFrame{statusFrame(sid, statusToolExecuting)}
		if event.Tool != nil {
			frames = append(frames, s2cFrame{Type: frameS2CToolStart, SessionID: sid, Tool: &toolFrame{
				CallID: event.Tool.CallID,
				Name:   event.Tool.Name,
				Args:   event.Tool.Args,
			}})
		}
		return frames

	case models.EventToolProgress:
		if event.Tool == nil {
			return nil
		}
		return []s2cFrame{{Type: frameS2CToolProgress, SessionID: sid, Tool: &toolFrame{
			CallID:   event.Tool.CallID,
			Progress: event.Tool.Progress,
		}}}

	case models.EventToolEnd:
		frames := make([]s2cFrame, 0, 2)
		if event.Tool != nil {
			tf := &toolFrame{
				CallID:  event.Tool.CallID,
				Name:    event.Tool.Name,
				Elapsed: event.Tool.Elapsed.Milliseconds(),
			}
			if result := event.Tool.Result; result != nil {
				success := !result.IsError
				tf.Success = &success
				tf.Output = result.Content
			}
			frames = append(frames, s2cFrame{Type: frameS2CToolEnd, SessionID: sid, Tool: tf})
		}
		// The loop goes back to the model after a tool round.
		frames = append(frames, statusFrame(sid, statusThinking))
		return frames

	case models.EventComplete:
		answer := ""
		if event.Complete != nil {
			answer = event.Complete.Answer
		}
		return []s2cFrame{
			{Type: frameS2CTextComplete, SessionID: sid, Text: answer},
			statusFrame(sid, statusComplete),
		}

	case models.EventError:
		message := "agent run failed"
		code := string(models.ErrKindFatal)
		if event.Error != nil {
			message = event.Error.Message
			code = string(event.Error.Kind)
		}
		return []s2cFrame{
			errorFrame(code, message),
			statusFrame(sid, statusError),
		}

	case models.EventAborted:
		return []s2cFrame{statusFrame(sid, statusIdle)}
	}
	return nil
}
