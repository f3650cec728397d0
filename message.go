package wsgate

import (
	"encoding/json"
	"time"
)

// MessageType 消息类型
type MessageType string

const (
	// MessageTypeRequest 请求消息（携带 RequestID，要求应答）
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse 响应消息
	MessageTypeResponse MessageType = "response"
	// MessageTypeNotify 通知消息（无需应答）
	MessageTypeNotify MessageType = "notify"
	// MessageTypeError 错误消息
	MessageTypeError MessageType = "error"
)

// Message 入站消息
type Message struct {
	// Type 消息类型
	Type MessageType `json:"type"`

	// Event 事件名称（如 "chat.send"）
	Event string `json:"event"`

	// RequestID 请求 ID；非空表示请求-应答式消息，
	// 处理器结果直接回执给发起方，不再经过响应策略
	RequestID string `json:"request_id,omitempty"`

	// Data 消息数据（JSON）
	Data json.RawMessage `json:"data,omitempty"`

	// Timestamp 时间戳
	Timestamp int64 `json:"timestamp"`
}

// Unmarshal 解析消息数据
func (m *Message) Unmarshal(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Response 响应消息
type Response struct {
	// Type 固定为 "response"
	Type MessageType `json:"type"`

	// RequestID 对应的请求 ID
	RequestID string `json:"request_id"`

	// Code 业务状态码
	Code int `json:"code"`

	// Message 消息
	Message string `json:"message"`

	// Data 响应数据
	Data any `json:"data,omitempty"`

	// Timestamp 时间戳
	Timestamp int64 `json:"timestamp"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	// Type 固定为 "error"
	Type MessageType `json:"type"`

	// RequestID 对应的请求 ID
	RequestID string `json:"request_id,omitempty"`

	// Code 错误码
	Code int `json:"code"`

	// Message 错误消息
	Message string `json:"message"`

	// Timestamp 时间戳
	Timestamp int64 `json:"timestamp"`
}

// NewMessage 创建请求消息
func NewMessage(event string, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      MessageTypeRequest,
		Event:     event,
		Data:      dataBytes,
		Timestamp: time.Now().Unix(),
	}, nil
}

// NewNotifyMessage 创建通知消息
func NewNotifyMessage(event string, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      MessageTypeNotify,
		Event:     event,
		Data:      dataBytes,
		Timestamp: time.Now().Unix(),
	}, nil
}

// NewResponse 创建响应
func NewResponse(requestID string, code int, message string, data any) *Response {
	return &Response{
		Type:      MessageTypeResponse,
		RequestID: requestID,
		Code:      code,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(requestID string, code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Type:      MessageTypeError,
		RequestID: requestID,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
}
