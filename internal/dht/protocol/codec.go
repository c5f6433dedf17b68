package protocol

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dep2p/go-kad/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize 单个数据报的最大长度
const MaxFrameSize = 65507

// 编解码错误
var (
	// ErrMalformed 无法解析的帧
	ErrMalformed = errors.New("protocol: malformed frame")

	// ErrUnknownKind 未知消息类型
	ErrUnknownKind = errors.New("protocol: unknown message kind")

	// ErrFrameTooLarge 编码结果超过 MaxFrameSize
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// 字段编号（protobuf 线格式，无生成代码）
//
//	1 kind         varint
//	2 sender       bytes(20)
//	3 conversation bytes(20)
//	4 key/target   bytes(20)
//	5 data hash    bytes(20)
//	6 published at fixed64 (Unix 纳秒, UTC)
//	7 value size   varint
//	8 should send  varint(bool)
//	9 contact      bytes（嵌套: 1 id, 2 address, 3 port），可重复
//	10 value       bytes，可重复
//	11 data        bytes
const (
	fieldKind         protowire.Number = 1
	fieldSender       protowire.Number = 2
	fieldConversation protowire.Number = 3
	fieldKey          protowire.Number = 4
	fieldDataHash     protowire.Number = 5
	fieldPublishedAt  protowire.Number = 6
	fieldValueSize    protowire.Number = 7
	fieldShouldSend   protowire.Number = 8
	fieldContact      protowire.Number = 9
	fieldValue        protowire.Number = 10
	fieldData         protowire.Number = 11

	contactFieldID      protowire.Number = 1
	contactFieldAddress protowire.Number = 2
	contactFieldPort    protowire.Number = 3
)

// ============================================================================
//                              编码
// ============================================================================

// Encode 将消息编码为一个数据报
func Encode(m Message) ([]byte, error) {
	b := make([]byte, 0, 64)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind()))
	b = appendID(b, fieldSender, m.Sender())
	b = appendID(b, fieldConversation, m.Conversation())

	switch msg := m.(type) {
	case *Ping, *Pong:
	case *FindNode:
		b = appendID(b, fieldKey, msg.Target)
	case *FindNodeResponse:
		b = appendContacts(b, msg.Contacts)
	case *FindValue:
		b = appendID(b, fieldKey, msg.Key)
	case *FindValueContactResponse:
		b = appendContacts(b, msg.Contacts)
	case *FindValueDataResponse:
		for _, v := range msg.Values {
			b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
			b = protowire.AppendBytes(b, v)
		}
	case *StoreQuery:
		b = appendID(b, fieldKey, msg.Key)
		b = appendID(b, fieldDataHash, msg.DataHash)
		b = appendTime(b, msg.PublishedAt)
		b = protowire.AppendTag(b, fieldValueSize, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(msg.ValueSize))
	case *StoreResponse:
		b = protowire.AppendTag(b, fieldShouldSend, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(msg.ShouldSendData))
	case *StoreData:
		b = appendID(b, fieldKey, msg.Key)
		b = appendTime(b, msg.PublishedAt)
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, msg.Data)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}

	if len(b) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b))
	}
	return b, nil
}

func appendID(b []byte, num protowire.Number, id types.ID) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, id[:])
}

func appendTime(b []byte, t time.Time) []byte {
	b = protowire.AppendTag(b, fieldPublishedAt, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, uint64(t.UnixNano()))
}

func appendContacts(b []byte, contacts []types.Contact) []byte {
	for _, c := range contacts {
		var inner []byte
		inner = protowire.AppendTag(inner, contactFieldID, protowire.BytesType)
		inner = protowire.AppendBytes(inner, c.ID[:])
		inner = protowire.AppendTag(inner, contactFieldAddress, protowire.BytesType)
		inner = protowire.AppendString(inner, c.Address)
		inner = protowire.AppendTag(inner, contactFieldPort, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(c.Port))

		b = protowire.AppendTag(b, fieldContact, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

// ============================================================================
//                              解码
// ============================================================================

// frame 解码中间结果
type frame struct {
	kind         Kind
	sender       types.ID
	conversation types.ID
	key          types.ID
	dataHash     types.ID
	publishedAt  time.Time
	valueSize    int
	shouldSend   bool
	contacts     []types.Contact
	values       [][]byte
	data         []byte

	seen map[protowire.Number]bool
}

// Decode 解析一个数据报
//
// 未知字段被跳过；缺少类型、发送者或会话 ID 时返回 ErrMalformed。
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}

	f := frame{seen: make(map[protowire.Number]bool)}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wrapParse(protowire.ParseError(n))
		}
		b = b[n:]

		n, err := f.consumeField(num, typ, b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
	}

	if !f.seen[fieldKind] || !f.seen[fieldSender] || !f.seen[fieldConversation] {
		return nil, fmt.Errorf("%w: missing header field", ErrMalformed)
	}
	return f.build()
}

func (f *frame) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case fieldKind, fieldValueSize, fieldShouldSend:
		if typ != protowire.VarintType {
			break
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, wrapParse(protowire.ParseError(n))
		}
		switch num {
		case fieldKind:
			if v > 0xFF {
				return 0, fmt.Errorf("%w: kind %d", ErrUnknownKind, v)
			}
			f.kind = Kind(v)
		case fieldValueSize:
			if v > math.MaxInt32 {
				return 0, fmt.Errorf("%w: value size %d", ErrMalformed, v)
			}
			f.valueSize = int(v)
		case fieldShouldSend:
			f.shouldSend = protowire.DecodeBool(v)
		}
		f.seen[num] = true
		return n, nil

	case fieldSender, fieldConversation, fieldKey, fieldDataHash:
		if typ != protowire.BytesType {
			break
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, wrapParse(protowire.ParseError(n))
		}
		id, err := types.IDFromBytes(v)
		if err != nil {
			return 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, err)
		}
		switch num {
		case fieldSender:
			f.sender = id
		case fieldConversation:
			f.conversation = id
		case fieldKey:
			f.key = id
		case fieldDataHash:
			f.dataHash = id
		}
		f.seen[num] = true
		return n, nil

	case fieldPublishedAt:
		if typ != protowire.Fixed64Type {
			break
		}
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return 0, wrapParse(protowire.ParseError(n))
		}
		f.publishedAt = time.Unix(0, int64(v)).UTC()
		f.seen[num] = true
		return n, nil

	case fieldContact:
		if typ != protowire.BytesType {
			break
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, wrapParse(protowire.ParseError(n))
		}
		c, err := decodeContact(v)
		if err != nil {
			return 0, err
		}
		f.contacts = append(f.contacts, c)
		f.seen[num] = true
		return n, nil

	case fieldValue, fieldData:
		if typ != protowire.BytesType {
			break
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, wrapParse(protowire.ParseError(n))
		}
		buf := make([]byte, len(v))
		copy(buf, v)
		if num == fieldValue {
			f.values = append(f.values, buf)
		} else {
			f.data = buf
		}
		f.seen[num] = true
		return n, nil
	}

	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, wrapParse(protowire.ParseError(n))
	}
	return n, nil
}

func decodeContact(b []byte) (types.Contact, error) {
	var (
		c              types.Contact
		hasID, hasPort bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, wrapParse(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == contactFieldID && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return c, wrapParse(protowire.ParseError(m))
			}
			id, err := types.IDFromBytes(v)
			if err != nil {
				return c, fmt.Errorf("%w: contact id: %v", ErrMalformed, err)
			}
			c.ID, hasID, n = id, true, m
		case num == contactFieldAddress && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return c, wrapParse(protowire.ParseError(m))
			}
			c.Address, n = v, m
		case num == contactFieldPort && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return c, wrapParse(protowire.ParseError(m))
			}
			if v == 0 || v > 0xFFFF {
				return c, fmt.Errorf("%w: contact port %d", ErrMalformed, v)
			}
			c.Port, hasPort, n = uint16(v), true, m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return c, wrapParse(protowire.ParseError(n))
			}
		}
		b = b[n:]
	}

	if !hasID || !hasPort || c.Address == "" {
		return c, fmt.Errorf("%w: incomplete contact", ErrMalformed)
	}
	return c, nil
}

// build 按类型组装消息，并检查该类型的必需字段
func (f *frame) build() (Message, error) {
	h := Header{SenderID: f.sender, ConversationID: f.conversation}

	need := func(nums ...protowire.Number) error {
		for _, n := range nums {
			if !f.seen[n] {
				return fmt.Errorf("%w: %s missing field %d", ErrMalformed, f.kind, n)
			}
		}
		return nil
	}

	switch f.kind {
	case KindPing:
		return &Ping{Header: h}, nil
	case KindPong:
		return &Pong{Header: h}, nil
	case KindFindNode:
		if err := need(fieldKey); err != nil {
			return nil, err
		}
		return &FindNode{Header: h, Target: f.key}, nil
	case KindFindNodeResponse:
		return &FindNodeResponse{Header: h, Contacts: f.contacts}, nil
	case KindFindValue:
		if err := need(fieldKey); err != nil {
			return nil, err
		}
		return &FindValue{Header: h, Key: f.key}, nil
	case KindFindValueContactResponse:
		return &FindValueContactResponse{Header: h, Contacts: f.contacts}, nil
	case KindFindValueDataResponse:
		return &FindValueDataResponse{Header: h, Values: f.values}, nil
	case KindStoreQuery:
		if err := need(fieldKey, fieldDataHash, fieldPublishedAt); err != nil {
			return nil, err
		}
		return &StoreQuery{
			Header:      h,
			Key:         f.key,
			DataHash:    f.dataHash,
			PublishedAt: f.publishedAt,
			ValueSize:   f.valueSize,
		}, nil
	case KindStoreResponse:
		return &StoreResponse{Header: h, ShouldSendData: f.shouldSend}, nil
	case KindStoreData:
		if err := need(fieldKey, fieldPublishedAt); err != nil {
			return nil, err
		}
		data := f.data
		if data == nil {
			data = []byte{}
		}
		return &StoreData{Header: h, Key: f.key, Data: data, PublishedAt: f.publishedAt}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, f.kind)
	}
}

func wrapParse(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
