package api

import "github.com/samcharles93/quantchat/internal/inference"

type CreateSessionRequest struct {
	Model        string   `json:"model,omitempty"`
	Quantized    *bool    `json:"quantized,omitempty"`
	TopK         *int     `json:"top_k,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`
	Rounds       *int     `json:"rounds,omitempty"`
	MaxLength    *int     `json:"max_length,omitempty"`
	MaxNewTokens *int     `json:"max_new_tokens,omitempty"`
	Policy       string   `json:"policy,omitempty"`
}

type SessionResponse struct {
	ID         string  `json:"id"`
	Object     string  `json:"object"`
	CreatedAt  int64   `json:"created_at"`
	Model      string  `json:"model"`
	Quantized  bool    `json:"quantized"`
	State      string  `json:"state"`
	Rounds     int     `json:"rounds"`
	MaxRounds  int     `json:"max_rounds"`
	HistoryLen int     `json:"history_len"`
	MaxLength  int     `json:"max_length"`
	Policy     string  `json:"policy"`
	TopK       int     `json:"top_k"`
	TopP       float64 `json:"top_p"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type Usage struct {
	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`
	HistoryTokens int `json:"history_tokens"`
}

type MessageResponse struct {
	ID        string                 `json:"id"`
	Object    string                 `json:"object"`
	SessionID string                 `json:"session_id"`
	Round     int                    `json:"round"`
	Content   string                 `json:"content"`
	Finish    inference.FinishReason `json:"finish_reason"`
	Truncated bool                   `json:"truncated"`
	Evicted   int                    `json:"evicted,omitempty"`
	State     string                 `json:"state"`
	Usage     Usage                  `json:"usage"`
}

type ModelInfo struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Source    string `json:"source"`
	Hidden    int    `json:"hidden_size"`
	Layers    int    `json:"num_layers"`
	VocabSize int    `json:"vocab_size"`
}

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
