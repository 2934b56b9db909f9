package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ModalityText  = "TEXT"
	ModalityAudio = "AUDIO"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// GenerationConfig carries sampling parameters for the setup handshake.
// Pointer fields are omitted from the wire when unset.
type GenerationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	TopK               *int     `json:"topK,omitempty"`
	TopP               *float64 `json:"topP,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// Setup is the first and only handshake message of a session. Exactly one is
// sent per session lifetime, always before any other outbound message.
type Setup struct {
	Type              string           `json:"type"`
	Model             string           `json:"model"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SystemInstruction string           `json:"systemInstruction,omitempty"`
	ResumptionHandle  string           `json:"resumptionHandle,omitempty"`
}

// MediaChunk is one unit of streamed media, base64 in transit.
type MediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// RealtimeInput carries outbound media chunks. Ordering matters within a
// single media kind; audio and video are independent streams multiplexed
// onto one channel.
type RealtimeInput struct {
	Type        string       `json:"type"`
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

// InlineData is media embedded in a content part.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one unit of turn content: text, inline media, or both absent for
// an empty keepalive part.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// ContentTurn is one role's contribution inside a clientContent message.
type ContentTurn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// ClientContent carries user text turns.
type ClientContent struct {
	Type         string        `json:"type"`
	Turns        []ContentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

// FunctionResponse answers a pending tool call, matched by id.
type FunctionResponse struct {
	Response map[string]any `json:"response"`
	ID       string         `json:"id"`
}

// ToolResponse carries one or more function responses back to the model.
type ToolResponse struct {
	Type              string             `json:"type"`
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// SetupComplete acknowledges the handshake. Empty payload.
type SetupComplete struct {
	Type string `json:"type"`
}

// ModelTurn is the accumulating assistant turn inside serverContent.
type ModelTurn struct {
	Parts []Part `json:"parts"`
}

// ServerContent streams assistant output. TurnComplete closes the current
// assistant turn; Interrupted aborts it and invalidates buffered audio.
type ServerContent struct {
	Type               string     `json:"type"`
	ModelTurn          *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete       bool       `json:"turnComplete,omitempty"`
	Interrupted        bool       `json:"interrupted,omitempty"`
	GenerationComplete bool       `json:"generationComplete,omitempty"`
}

// FunctionCall is one pending tool invocation requested by the model.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	ID   string         `json:"id"`
}

// ToolCall requests client-side tool execution.
type ToolCall struct {
	Type          string         `json:"type"`
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// SessionResumptionUpdate replaces the stored resumption handle. Each update
// supersedes the previous handle.
type SessionResumptionUpdate struct {
	Type      string `json:"type"`
	NewHandle string `json:"newHandle,omitempty"`
	Resumable bool   `json:"resumable,omitempty"`
}

// UsageMetadata updates token accounting. Never affects turn state.
type UsageMetadata struct {
	Type               string `json:"type"`
	PromptTokenCount   int    `json:"promptTokenCount"`
	ResponseTokenCount int    `json:"responseTokenCount"`
	TotalTokenCount    int    `json:"totalTokenCount"`
}

// NewSetup builds a setup message with the type discriminator populated.
func NewSetup(model string, cfg GenerationConfig, systemInstruction, resumptionHandle string) Setup {
	return Setup{
		Type:              "setup",
		Model:             strings.TrimSpace(model),
		GenerationConfig:  cfg,
		SystemInstruction: systemInstruction,
		ResumptionHandle:  strings.TrimSpace(resumptionHandle),
	}
}

// NewRealtimeInput builds a realtimeInput message.
func NewRealtimeInput(chunks []MediaChunk) RealtimeInput {
	return RealtimeInput{Type: "realtimeInput", MediaChunks: chunks}
}

// NewClientContent builds a single-turn user clientContent message.
func NewClientContent(text string, turnComplete bool) ClientContent {
	return ClientContent{
		Type: "clientContent",
		Turns: []ContentTurn{{
			Role:  RoleUser,
			Parts: []Part{{Text: text}},
		}},
		TurnComplete: turnComplete,
	}
}

// NewToolResponse builds a toolResponse message for one pending call.
func NewToolResponse(id string, response map[string]any) ToolResponse {
	return ToolResponse{
		Type: "toolResponse",
		FunctionResponses: []FunctionResponse{{
			ID:       strings.TrimSpace(id),
			Response: response,
		}},
	}
}

// ValidateSetup enforces the handshake parameter bounds before anything is
// put on the wire.
func ValidateSetup(msg Setup) error {
	if strings.TrimSpace(msg.Model) == "" {
		return badRequest("setup.model is required", "model")
	}
	cfg := msg.GenerationConfig
	if cfg.Temperature != nil && (*cfg.Temperature < 0 || *cfg.Temperature > 2) {
		return badRequest("setup.generationConfig.temperature must be in [0,2]", "generationConfig.temperature")
	}
	if cfg.TopK != nil && *cfg.TopK <= 0 {
		return badRequest("setup.generationConfig.topK must be a positive integer", "generationConfig.topK")
	}
	if cfg.TopP != nil && (*cfg.TopP < 0 || *cfg.TopP > 1) {
		return badRequest("setup.generationConfig.topP must be in [0,1]", "generationConfig.topP")
	}
	for i, modality := range cfg.ResponseModalities {
		switch modality {
		case ModalityText, ModalityAudio:
		default:
			return unsupported("unsupported response modality", fmt.Sprintf("generationConfig.responseModalities[%d]", i))
		}
	}
	return nil
}

// ValidateRealtimeInput rejects empty or untyped chunks before send.
func ValidateRealtimeInput(msg RealtimeInput) error {
	if len(msg.MediaChunks) == 0 {
		return badRequest("realtimeInput.mediaChunks must not be empty", "mediaChunks")
	}
	for i, chunk := range msg.MediaChunks {
		if strings.TrimSpace(chunk.MimeType) == "" {
			return badRequest("realtimeInput chunk mimeType is required", fmt.Sprintf("mediaChunks[%d].mimeType", i))
		}
		if strings.TrimSpace(chunk.Data) == "" {
			return badRequest("realtimeInput chunk data is required", fmt.Sprintf("mediaChunks[%d].data", i))
		}
	}
	return nil
}

// DecodeServerMessage decodes one inbound frame into its typed variant.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "setupComplete":
		var msg SetupComplete
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid setupComplete frame", "")
		}
		return msg, nil
	case "serverContent":
		var msg ServerContent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid serverContent frame", "")
		}
		return msg, nil
	case "toolCall":
		var msg ToolCall
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid toolCall frame", "")
		}
		for i, call := range msg.FunctionCalls {
			if strings.TrimSpace(call.ID) == "" {
				return nil, badRequest("toolCall functionCalls entries require an id", fmt.Sprintf("functionCalls[%d].id", i))
			}
			if strings.TrimSpace(call.Name) == "" {
				return nil, badRequest("toolCall functionCalls entries require a name", fmt.Sprintf("functionCalls[%d].name", i))
			}
		}
		return msg, nil
	case "sessionResumptionUpdate":
		var msg SessionResumptionUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid sessionResumptionUpdate frame", "")
		}
		return msg, nil
	case "usageMetadata":
		var msg UsageMetadata
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid usageMetadata frame", "")
		}
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

// DecodeClientMessage decodes one outbound-direction frame. Used by tests and
// by servers that speak the same vocabulary.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "setup":
		var msg Setup
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid setup frame", "")
		}
		if err := ValidateSetup(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "realtimeInput":
		var msg RealtimeInput
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid realtimeInput frame", "")
		}
		if err := ValidateRealtimeInput(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "clientContent":
		var msg ClientContent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid clientContent frame", "")
		}
		for i, turn := range msg.Turns {
			if turn.Role != RoleUser {
				return nil, badRequest("clientContent turns must carry role user", fmt.Sprintf("turns[%d].role", i))
			}
		}
		return msg, nil
	case "toolResponse":
		var msg ToolResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid toolResponse frame", "")
		}
		if len(msg.FunctionResponses) == 0 {
			return nil, badRequest("toolResponse.functionResponses must not be empty", "functionResponses")
		}
		for i, resp := range msg.FunctionResponses {
			if strings.TrimSpace(resp.ID) == "" {
				return nil, badRequest("toolResponse entries require an id", fmt.Sprintf("functionResponses[%d].id", i))
			}
		}
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}
