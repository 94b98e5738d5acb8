// =============================================================================
// 文件: internal/protocol/protocol_test.go
// 描述: 线格式编解码测试
// =============================================================================

package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeData(t *testing.T) {
	h := &Header{
		Type:     TypeData,
		Seq:      0x1234,
		Ack:      0xBEEF,
		AckField: 0xDEADBEEF,
	}
	payload := []byte("hello mirage")

	buf, err := Encode(h, payload)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	if len(buf) != HeaderSize+len(payload) {
		t.Errorf("编码长度 = %d, want %d", len(buf), HeaderSize+len(payload))
	}

	got, gotPayload, err := Decode(buf)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if *got != *h {
		t.Errorf("包头不一致: got %+v, want %+v", got, h)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("负载不一致: %q", gotPayload)
	}
}

func TestEncodeWireLayout(t *testing.T) {
	// 大端序布局必须稳定, 两端靠它互通
	h := &Header{Type: TypeData, Seq: 0x0102, Ack: 0x0304, AckField: 0x05060708}
	buf, err := Encode(h, nil)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	want := []byte{0x01, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if !bytes.Equal(buf, want) {
		t.Errorf("线上布局 = % X, want % X", buf, want)
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	h := &Header{Type: TypeData}
	if _, err := Encode(h, make([]byte, MaxPayloadSize+1)); err == nil {
		t.Errorf("超长负载应失败")
	}
	if _, err := Encode(h, make([]byte, MaxPayloadSize)); err != nil {
		t.Errorf("恰好达到上限应成功: %v", err)
	}
}

func TestEncodeHeartbeatRejectsPayload(t *testing.T) {
	h := &Header{Type: TypeHeartbeat}
	if _, err := Encode(h, []byte("x")); err == nil {
		t.Errorf("携带负载的心跳应失败")
	}
	buf, err := Encode(h, nil)
	if err != nil {
		t.Fatalf("空心跳编码失败: %v", err)
	}
	if len(buf) != HeaderSize {
		t.Errorf("心跳长度 = %d, want %d", len(buf), HeaderSize)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, _, err := Decode(make([]byte, HeaderSize-1)); err == nil {
		t.Errorf("短包应失败")
	}
	if _, _, err := Decode(nil); err == nil {
		t.Errorf("空数据应失败")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0x7F
	if _, _, err := Decode(buf); err == nil {
		t.Errorf("未知类型应失败")
	}
}

func TestDecodeHeartbeatWithPayload(t *testing.T) {
	buf := make([]byte, HeaderSize+3)
	buf[0] = TypeHeartbeat
	if _, _, err := Decode(buf); err == nil {
		t.Errorf("携带负载的心跳应拒绝")
	}
}

func TestIsHeartbeat(t *testing.T) {
	if !IsHeartbeat(&Header{Type: TypeHeartbeat}) {
		t.Errorf("心跳判定错误")
	}
	if IsHeartbeat(&Header{Type: TypeData}) {
		t.Errorf("数据包误判为心跳")
	}
}
