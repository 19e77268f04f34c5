package contract

import (
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"ChainFL/internal/artifact"
	"ChainFL/internal/ledger"
	"ChainFL/internal/types"
)

// encodeRound serializes a round as a RoundRecord table.
func encodeRound(r ledger.RoundInfo) []byte {
	b := flatbuffers.NewBuilder(256)

	globalURI := b.CreateString(r.GlobalModel.URI)
	globalHash := b.CreateString(r.GlobalModel.SHA256)
	aggURI := b.CreateString(r.AggregatedModel.URI)
	aggHash := b.CreateString(r.AggregatedModel.SHA256)

	types.RoundRecordStart(b)
	types.RoundRecordAddRound(b, r.ID)
	types.RoundRecordAddState(b, types.RoundState(r.State))
	types.RoundRecordAddGlobalUri(b, globalURI)
	types.RoundRecordAddGlobalHash(b, globalHash)
	types.RoundRecordAddAggregatedUri(b, aggURI)
	types.RoundRecordAddAggregatedHash(b, aggHash)
	types.RoundRecordAddUpdateCount(b, uint64(r.UpdateCount))
	types.RoundRecordAddOpenedAt(b, unixNano(r.OpenedAt))
	types.RoundRecordAddClosedAt(b, unixNano(r.ClosedAt))
	b.Finish(types.RoundRecordEnd(b))

	return b.FinishedBytes()
}

// decodeRound parses a RoundRecord table.
func decodeRound(data []byte) ledger.RoundInfo {
	rec := types.GetRootAsRoundRecord(data, 0)

	return ledger.RoundInfo{
		ID:    rec.Round(),
		State: ledger.RoundState(rec.State()),
		GlobalModel: artifact.ContentRef{
			URI:    string(rec.GlobalUri()),
			SHA256: string(rec.GlobalHash()),
		},
		AggregatedModel: artifact.ContentRef{
			URI:    string(rec.AggregatedUri()),
			SHA256: string(rec.AggregatedHash()),
		},
		UpdateCount: int(rec.UpdateCount()),
		OpenedAt:    fromUnixNano(rec.OpenedAt()),
		ClosedAt:    fromUnixNano(rec.ClosedAt()),
	}
}

// encodeUpdate serializes an update as an UpdateRecord table.
func encodeUpdate(u ledger.Update, sender []byte, txHash [32]byte) []byte {
	b := flatbuffers.NewBuilder(256)

	clientID := b.CreateString(u.ClientID)
	senderVec := b.CreateByteVector(sender)
	uri := b.CreateString(u.Weights.URI)
	hash := b.CreateString(u.Weights.SHA256)
	txVec := b.CreateByteVector(txHash[:])

	types.UpdateRecordStart(b)
	types.UpdateRecordAddRound(b, u.Round)
	types.UpdateRecordAddIndex(b, uint64(u.Index))
	types.UpdateRecordAddClientId(b, clientID)
	types.UpdateRecordAddSender(b, senderVec)
	types.UpdateRecordAddUri(b, uri)
	types.UpdateRecordAddHash(b, hash)
	types.UpdateRecordAddSize(b, u.Size)
	types.UpdateRecordAddSubmittedAt(b, unixNano(u.SubmittedAt))
	types.UpdateRecordAddTxHash(b, txVec)
	b.Finish(types.UpdateRecordEnd(b))

	return b.FinishedBytes()
}

// decodeUpdate parses an UpdateRecord table.
func decodeUpdate(data []byte) ledger.Update {
	rec := types.GetRootAsUpdateRecord(data, 0)

	return ledger.Update{
		Index:    int(rec.Index()),
		Round:    rec.Round(),
		ClientID: string(rec.ClientId()),
		Sender:   hexString(rec.SenderBytes()),
		Weights: artifact.ContentRef{
			URI:    string(rec.Uri()),
			SHA256: string(rec.Hash()),
		},
		Size:        rec.Size(),
		SubmittedAt: fromUnixNano(rec.SubmittedAt()),
		TxHash:      "0x" + hexString(rec.TxHashBytes()),
	}
}

// unixNano maps the zero time to 0.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// fromUnixNano maps 0 back to the zero time.
func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
