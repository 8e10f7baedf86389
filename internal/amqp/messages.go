package amqp

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message types carried in the AMQP Type property.
const (
	TypeDealSync   = "deal.sync"
	TypeDealDelete = "deal.delete"
)

// DealSyncMessage asks the worker to mirror a deal. The worker reads the
// full record from the database, so only the id and version travel.
type DealSyncMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDealSyncMessage(id, version int64) *DealSyncMessage {
	return &DealSyncMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *DealSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DealSyncMessageFromJSON(data []byte) (*DealSyncMessage, error) {
	var msg DealSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DealDeleteMessage asks the worker to drop a deal's mirrored row.
// The record is already gone, so it carries what the worker needs to find it.
type DealDeleteMessage struct {
	ID          int64     `json:"id"`
	StockNumber string    `json:"stock_number"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewDealDeleteMessage(id int64, stockNumber string) *DealDeleteMessage {
	return &DealDeleteMessage{
		ID:          id,
		StockNumber: stockNumber,
		Timestamp:   time.Now(),
	}
}

func (m *DealDeleteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DealDeleteMessageFromJSON(data []byte) (*DealDeleteMessage, error) {
	var msg DealDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
