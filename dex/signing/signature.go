package signing

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Algorithm 签名算法标签。
// 调用方根据签名代理暴露的能力选择。
type Algorithm uint8

const (
	// AlgorithmEthSign 普通消息签名（eth_sign / personal_sign 回退路径）
	AlgorithmEthSign Algorithm = 0
	// AlgorithmEIP712 结构化数据签名（优先）
	AlgorithmEIP712 Algorithm = 1
)

// EncodedSignatureLength 紧凑签名编码长度：tag(1) + v(1) + r(32) + s(32)。
const EncodedSignatureLength = 66

// SignatureEnvelope 解码后的签名分量。
type SignatureEnvelope struct {
	Algorithm Algorithm
	V         uint8
	R         [32]byte
	S         [32]byte
}

// ParseRawSignature 解析签名代理输出的十六进制签名。
// 布局：r 前 32 字节，s 接着 32 字节，v 再接 1 字节（无符号整数）。
func ParseRawSignature(raw string, algorithm Algorithm) (*SignatureEnvelope, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析签名十六进制失败: %w", err)
	}
	if len(b) < 65 {
		return nil, fmt.Errorf("签名长度不足: %d 字节", len(b))
	}

	env := &SignatureEnvelope{Algorithm: algorithm, V: b[64]}
	copy(env.R[:], b[0:32])
	copy(env.S[:], b[32:64])
	return env, nil
}

// Encode 生成紧凑提交编码：algorithmTag || v || r || s。
// 每个数值字段左填充到固定宽度（v 1 字节，r/s 各 32 字节）。
func (e *SignatureEnvelope) Encode() []byte {
	out := make([]byte, 0, EncodedSignatureLength)
	out = append(out, byte(e.Algorithm), e.V)
	out = append(out, e.R[:]...)
	out = append(out, e.S[:]...)
	return out
}

// EncodeHex 紧凑编码的十六进制表示（0x 前缀）。
func (e *SignatureEnvelope) EncodeHex() string {
	return "0x" + hex.EncodeToString(e.Encode())
}

// DecodeSignature 解出紧凑编码的签名分量（Encode 的逆）。
func DecodeSignature(encoded []byte) (*SignatureEnvelope, error) {
	if len(encoded) != EncodedSignatureLength {
		return nil, fmt.Errorf("紧凑签名长度必须是 %d 字节，得到 %d", EncodedSignatureLength, len(encoded))
	}
	env := &SignatureEnvelope{
		Algorithm: Algorithm(encoded[0]),
		V:         encoded[1],
	}
	copy(env.R[:], encoded[2:34])
	copy(env.S[:], encoded[34:66])
	return env, nil
}

// DecodeSignatureHex 解码十六进制紧凑签名。
func DecodeSignatureHex(encoded string) (*SignatureEnvelope, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析紧凑签名十六进制失败: %w", err)
	}
	return DecodeSignature(b)
}

// RHex / SHex 推荐事件上报用的分量十六进制。
func (e *SignatureEnvelope) RHex() string { return "0x" + hex.EncodeToString(e.R[:]) }
func (e *SignatureEnvelope) SHex() string { return "0x" + hex.EncodeToString(e.S[:]) }
