package models

import "time"

// Message is an inbound message fetched from a provider folder
type Message struct {
	ID         string
	Folder     string
	Subject    string
	Sender     string // "Name <address>"
	Receiver   string // Comma-joined recipient addresses
	Preview    string // Plain preview text
	HTMLBody   string
	ReceivedAt time.Time
}

// OutgoingMail is a single message handed to a send backend
type OutgoingMail struct {
	To       string
	Subject  string
	HTMLBody string
}

// Folder identifies one of the two folders read for every account
type Folder int

const (
	FolderInbox Folder = iota
	FolderJunk
)

func (f Folder) String() string {
	if f == FolderJunk {
		return "junk"
	}
	return "inbox"
}

// FormatSender renders a sender as "Name <address>"
func FormatSender(name, address string) string {
	return name + " <" + address + ">"
}
