package ledger

import (
	"encoding/binary"

	"ChainFL/internal/artifact"
)

// Method names a ledger RPC.
type Method string

const (
	MethodInfo            Method = "info"
	MethodEstimate        Method = "estimate"
	MethodStartRound      Method = "startRound"
	MethodCurrentRound    Method = "currentRound"
	MethodGetRound        Method = "getRound"
	MethodSubmitUpdate    Method = "submitUpdate"
	MethodUpdateCount     Method = "getUpdateCount"
	MethodGetUpdate       Method = "getUpdate"
	MethodCloseRound      Method = "closeRound"
	MethodStoreAggregated Method = "storeAggregated"
)

// IsWrite reports whether m mutates ledger state.
func (m Method) IsWrite() bool {
	switch m {
	case MethodStartRound, MethodSubmitUpdate, MethodCloseRound, MethodStoreAggregated:
		return true
	default:
		return false
	}
}

// Request is the JSON body of a ledger RPC.
type Request struct {
	Method   Method              `json:"method"`
	Nonce    string              `json:"nonce,omitempty"` // Nonce identifies one logical write; retries resend the same value
	Round    RoundID             `json:"round,omitempty"`
	Index    int                 `json:"index,omitempty"`
	ClientID string              `json:"clientId,omitempty"`
	Ref      artifact.ContentRef `json:"ref,omitzero"`
	Size     uint64              `json:"size,omitempty"`
	GasLimit uint64              `json:"gasLimit,omitempty"`
	Call     *Request            `json:"call,omitempty"` // Call is the write priced by MethodEstimate
}

// Response is the JSON body of a ledger RPC reply. Code is empty on success.
type Response struct {
	Code    string     `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
	Receipt *TxReceipt `json:"receipt,omitempty"`
	Round   *RoundInfo `json:"roundInfo,omitempty"`
	Update  *Update    `json:"update,omitempty"`
	Count   int        `json:"count,omitempty"`
	Current RoundID    `json:"current,omitempty"`
	Gas     uint64     `json:"gas,omitempty"`
	Info    *NodeInfo  `json:"info,omitempty"`
}

// NodeInfo identifies a ledger node.
type NodeInfo struct {
	Owner        string `json:"owner"`        // Owner is the hex ed25519 key allowed to manage rounds
	ReceiptKey   string `json:"receiptKey"`   // ReceiptKey is the hex BLS public key signing receipts
	CurrentRound uint64 `json:"currentRound"` // CurrentRound is the latest round at the time of the call
}

// ReceiptMessage is the byte string a receipt signature covers.
func ReceiptMessage(r TxReceipt) []byte {
	msg := make([]byte, 0, 16+len(r.TxHash)+24)
	msg = append(msg, "chainfl-receipt:"...)
	msg = append(msg, r.TxHash...)
	msg = binary.BigEndian.AppendUint64(msg, r.Round)
	msg = binary.BigEndian.AppendUint64(msg, r.GasUsed)
	msg = binary.BigEndian.AppendUint64(msg, r.GasLimit)

	return msg
}
