package domain

import "errors"

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelBusy     = errors.New("channel busy")
	ErrNotHolder       = errors.New("not lock holder")
)

// ChannelID is a small positive integer, stable across restarts.
// Channels are pre-provisioned from config; users never create them.
type ChannelID int

type Channel struct {
	ID          ChannelID `json:"id"`
	DisplayName string    `json:"displayName"`
}
