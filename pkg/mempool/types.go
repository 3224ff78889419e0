package mempool

// TxStatus is the confirmation state of a transaction as reported by /api/tx/{txid}/status.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`    // true once the transaction is included in a block
	BlockHeight int64  `json:"block_height"` // height of the including block (confirmed only)
	BlockHash   string `json:"block_hash"`   // hash of the including block (confirmed only)
	BlockTime   int64  `json:"block_time"`   // block timestamp in unix seconds (confirmed only)
}

// Block is a mined block as announced on the websocket.
type Block struct {
	ID        string `json:"id"`
	Height    int64  `json:"height"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	TxCount   int    `json:"tx_count"`
}

// blockEvent is the websocket frame carrying a new block. Other frames
// (initial block list, fee estimates) leave Block nil.
type blockEvent struct {
	Block *Block `json:"block"`
}

type wantMessage struct {
	Action string   `json:"action"`
	Data   []string `json:"data"`
}
