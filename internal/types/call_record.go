package types

// CallRecord is the persisted row for a finished call. DateKey partitions
// records by day; CallID is the sort key.
type CallRecord struct {
	DateKey         string  `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	CallID          string  `json:"callId" dynamodbav:"CallID"`   // sort key
	CallerID        string  `json:"callerId" dynamodbav:"CallerID"`
	CallerType      string  `json:"callerType" dynamodbav:"CallerType"`
	CallerName      string  `json:"callerName" dynamodbav:"CallerName"`
	ReceiverID      string  `json:"receiverId" dynamodbav:"ReceiverID"`
	ReceiverType    string  `json:"receiverType" dynamodbav:"ReceiverType"`
	ReceiverName    string  `json:"receiverName" dynamodbav:"ReceiverName"`
	Status          string  `json:"status" dynamodbav:"Status"`
	StartedAt       string  `json:"startedAt" dynamodbav:"StartedAt"`               // RFC3339
	ConnectedAt     string  `json:"connectedAt,omitempty" dynamodbav:"ConnectedAt"` // RFC3339, empty if never connected
	EndedAt         string  `json:"endedAt,omitempty" dynamodbav:"EndedAt"`         // RFC3339
	EndReason       string  `json:"endReason" dynamodbav:"EndReason"`
	TalkSeconds     float64 `json:"talkSeconds" dynamodbav:"TalkSeconds"` // connected -> ended
	IsRecorded      bool    `json:"isRecorded" dynamodbav:"IsRecorded"`
	RecordingID     string  `json:"recordingId,omitempty" dynamodbav:"RecordingID"`
}
