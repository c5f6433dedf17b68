// Package protocol 定义 Kademlia 请求/响应消息及其线格式编解码
//
// 每条消息携带发送者 ID 与会话 ID。请求的会话 ID 每次随机生成；
// 响应只能由它所应答的请求构造，从而继承同一会话 ID。
//
// # 消息表
//
//	Ping                      请求
//	Pong                      Ping 的响应
//	FindNode                  请求（target）
//	FindNodeResponse          响应（contacts）
//	FindValue                 请求（key）
//	FindValueContactResponse  响应：未找到值（contacts）
//	FindValueDataResponse     响应：找到值（values）
//	StoreQuery                请求（key, dataHash, publishedAt, valueSize）
//	StoreResponse             响应（shouldSendData）
//	StoreData                 StoreResponse 的后续（key, data, publishedAt）
package protocol

import (
	"time"

	"github.com/dep2p/go-kad/pkg/types"
)

// Kind 消息类型标签
type Kind uint8

// 消息类型
const (
	KindPing Kind = iota + 1
	KindPong
	KindFindNode
	KindFindNodeResponse
	KindFindValue
	KindFindValueContactResponse
	KindFindValueDataResponse
	KindStoreQuery
	KindStoreResponse
	KindStoreData
)

var kindNames = map[Kind]string{
	KindPing:                     "Ping",
	KindPong:                     "Pong",
	KindFindNode:                 "FindNode",
	KindFindNodeResponse:         "FindNodeResponse",
	KindFindValue:                "FindValue",
	KindFindValueContactResponse: "FindValueContactResponse",
	KindFindValueDataResponse:    "FindValueDataResponse",
	KindStoreQuery:               "StoreQuery",
	KindStoreResponse:            "StoreResponse",
	KindStoreData:                "StoreData",
}

// String 返回类型名
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Message 所有消息的公共接口
type Message interface {
	// Name 用于日志的类型名
	Name() string

	// Kind 消息类型标签
	Kind() Kind

	// Sender 发送者 ID
	Sender() types.ID

	// Conversation 会话 ID
	Conversation() types.ID
}

// Request 请求消息
type Request interface {
	Message
	request()
}

// Response 响应消息
type Response interface {
	Message
	response()
}

// Header 消息公共头
type Header struct {
	SenderID       types.ID
	ConversationID types.ID
}

// Sender 发送者 ID
func (h Header) Sender() types.ID { return h.SenderID }

// Conversation 会话 ID
func (h Header) Conversation() types.ID { return h.ConversationID }

func newRequestHeader(self types.ID) Header {
	return Header{SenderID: self, ConversationID: types.RandomID()}
}

func replyHeader(self types.ID, to Message) Header {
	return Header{SenderID: self, ConversationID: to.Conversation()}
}

// ============================================================================
//                              Ping / Pong
// ============================================================================

// Ping 存活探测
type Ping struct{ Header }

// NewPing 创建新会话的 Ping
func NewPing(self types.ID) *Ping {
	return &Ping{Header: newRequestHeader(self)}
}

func (*Ping) Name() string { return KindPing.String() }
func (*Ping) Kind() Kind   { return KindPing }
func (*Ping) request()     {}

// Pong Ping 的响应
type Pong struct{ Header }

// NewPong 应答 Ping
func NewPong(self types.ID, req *Ping) *Pong {
	return &Pong{Header: replyHeader(self, req)}
}

func (*Pong) Name() string { return KindPong.String() }
func (*Pong) Kind() Kind   { return KindPong }
func (*Pong) response()    {}

// ============================================================================
//                              FindNode
// ============================================================================

// FindNode 请求距离 Target 最近的联系人
type FindNode struct {
	Header
	Target types.ID
}

// NewFindNode 创建新会话的 FindNode
func NewFindNode(self, target types.ID) *FindNode {
	return &FindNode{Header: newRequestHeader(self), Target: target}
}

func (*FindNode) Name() string { return KindFindNode.String() }
func (*FindNode) Kind() Kind   { return KindFindNode }
func (*FindNode) request()     {}

// FindNodeResponse FindNode 的响应
type FindNodeResponse struct {
	Header
	Contacts []types.Contact
}

// NewFindNodeResponse 应答 FindNode
func NewFindNodeResponse(self types.ID, req *FindNode, contacts []types.Contact) *FindNodeResponse {
	return &FindNodeResponse{Header: replyHeader(self, req), Contacts: contacts}
}

func (*FindNodeResponse) Name() string { return KindFindNodeResponse.String() }
func (*FindNodeResponse) Kind() Kind   { return KindFindNodeResponse }
func (*FindNodeResponse) response()    {}

// ============================================================================
//                              FindValue
// ============================================================================

// FindValue 请求 Key 下的值，不存在时返回最近联系人
type FindValue struct {
	Header
	Key types.ID
}

// NewFindValue 创建新会话的 FindValue
func NewFindValue(self, key types.ID) *FindValue {
	return &FindValue{Header: newRequestHeader(self), Key: key}
}

func (*FindValue) Name() string { return KindFindValue.String() }
func (*FindValue) Kind() Kind   { return KindFindValue }
func (*FindValue) request()     {}

// FindValueContactResponse 未找到值时的响应
type FindValueContactResponse struct {
	Header
	Contacts []types.Contact
}

// NewFindValueContactResponse 以联系人应答 FindValue
func NewFindValueContactResponse(self types.ID, req *FindValue, contacts []types.Contact) *FindValueContactResponse {
	return &FindValueContactResponse{Header: replyHeader(self, req), Contacts: contacts}
}

func (*FindValueContactResponse) Name() string { return KindFindValueContactResponse.String() }
func (*FindValueContactResponse) Kind() Kind   { return KindFindValueContactResponse }
func (*FindValueContactResponse) response()    {}

// FindValueDataResponse 找到值时的响应
type FindValueDataResponse struct {
	Header
	Values [][]byte
}

// NewFindValueDataResponse 以值应答 FindValue
func NewFindValueDataResponse(self types.ID, req *FindValue, values [][]byte) *FindValueDataResponse {
	return &FindValueDataResponse{Header: replyHeader(self, req), Values: values}
}

func (*FindValueDataResponse) Name() string { return KindFindValueDataResponse.String() }
func (*FindValueDataResponse) Kind() Kind   { return KindFindValueDataResponse }
func (*FindValueDataResponse) response()    {}

// ============================================================================
//                              Store 握手
// ============================================================================

// StoreQuery 询问对方是否需要 (Key, DataHash) 对应的值
type StoreQuery struct {
	Header
	Key         types.ID
	DataHash    types.ID
	PublishedAt time.Time
	ValueSize   int
}

// NewStoreQuery 创建新会话的 StoreQuery
func NewStoreQuery(self, key, dataHash types.ID, publishedAt time.Time, size int) *StoreQuery {
	return &StoreQuery{
		Header:      newRequestHeader(self),
		Key:         key,
		DataHash:    dataHash,
		PublishedAt: publishedAt.UTC(),
		ValueSize:   size,
	}
}

func (*StoreQuery) Name() string { return KindStoreQuery.String() }
func (*StoreQuery) Kind() Kind   { return KindStoreQuery }
func (*StoreQuery) request()     {}

// StoreResponse StoreQuery 的响应
type StoreResponse struct {
	Header
	ShouldSendData bool
}

// NewStoreResponse 应答 StoreQuery
func NewStoreResponse(self types.ID, req *StoreQuery, shouldSend bool) *StoreResponse {
	return &StoreResponse{Header: replyHeader(self, req), ShouldSendData: shouldSend}
}

func (*StoreResponse) Name() string { return KindStoreResponse.String() }
func (*StoreResponse) Kind() Kind   { return KindStoreResponse }
func (*StoreResponse) response()    {}

// StoreData 收到 ShouldSendData 后推送的值负载
//
// 沿用 StoreQuery 的会话 ID，接收方据此匹配接受记录。
type StoreData struct {
	Header
	Key         types.ID
	Data        []byte
	PublishedAt time.Time
}

// NewStoreData 对 StoreResponse 推送值
func NewStoreData(self types.ID, resp *StoreResponse, key types.ID, data []byte, publishedAt time.Time) *StoreData {
	return &StoreData{
		Header:      replyHeader(self, resp),
		Key:         key,
		Data:        data,
		PublishedAt: publishedAt.UTC(),
	}
}

func (*StoreData) Name() string { return KindStoreData.String() }
func (*StoreData) Kind() Kind   { return KindStoreData }
func (*StoreData) response()    {}

var (
	_ Request  = (*Ping)(nil)
	_ Request  = (*FindNode)(nil)
	_ Request  = (*FindValue)(nil)
	_ Request  = (*StoreQuery)(nil)
	_ Response = (*Pong)(nil)
	_ Response = (*FindNodeResponse)(nil)
	_ Response = (*FindValueContactResponse)(nil)
	_ Response = (*FindValueDataResponse)(nil)
	_ Response = (*StoreResponse)(nil)
	_ Response = (*StoreData)(nil)
)
