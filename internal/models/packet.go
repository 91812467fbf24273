package models

// EncryptedPacket is the wire shape relayed between clients. The server never
// sees plaintext: ciphertext and nonce are opaque base64 blobs produced by the
// client's AEAD, and seq is the AEAD associated data the clients agreed on.
type EncryptedPacket struct {
	Type           string `json:"type,omitempty"`
	From           string `json:"from"`
	To             string `json:"to,omitempty"`
	ConversationID string `json:"conv_id"`
	Seq            int64  `json:"seq"`
	Nonce          string `json:"nonce"`
	Ciphertext     string `json:"ciphertext"`
	Timestamp      string `json:"timestamp,omitempty"` // ISO-8601 UTC, set by the server
}

// PeerKeyEvent announces a peer's ephemeral public key to a recipient's room.
type PeerKeyEvent struct {
	Type   string `json:"type"`
	From   string `json:"from"`
	PubKey string `json:"pub_key"`
}

// HistoricalPacket is one entry of the conversation history endpoint, ordered
// by storage time ascending.
type HistoricalPacket struct {
	From       string `json:"from"`
	Seq        int64  `json:"seq"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Timestamp  string `json:"timestamp"`
}
