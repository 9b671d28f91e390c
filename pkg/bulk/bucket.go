package bulk

import "fmt"

// Bucket is a bounded, ordered batch of document ids for one command. Bucket
// numbers start at 1 and are contiguous per command.
type Bucket struct {
	CommandID string   `json:"commandId"`
	Number    int64    `json:"number"`
	IDs       []string `json:"ids"`
}

// Key returns the record key the bucket is published under.
func (b *Bucket) Key() string {
	return BucketKey(b.CommandID, b.Number)
}

// BucketKey formats the "{commandId}:{bucketNumber}" record key.
func BucketKey(commandID string, number int64) string {
	return fmt.Sprintf("%s:%d", commandID, number)
}
