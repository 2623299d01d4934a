package session

import (
	"encoding/json"

	"github.com/hitoshi/taskman/internal/model"
)

// recordVersion は永続化レコードの形式バージョン。
const recordVersion = 0

// record は永続化レコードの形式。
// {"state":{"token":...,"user":...},"version":0}
type record struct {
	State   recordState `json:"state"`
	Version int         `json:"version"`
}

type recordState struct {
	Token *string        `json:"token"`
	User  *model.Profile `json:"user"`
}

// token は未設定（null）を空文字列として返す。
func (s recordState) token() string {
	if s.Token == nil {
		return ""
	}
	return *s.Token
}

func encodeRecord(snap Snapshot) ([]byte, error) {
	state := recordState{User: snap.User}
	if snap.Token != "" {
		token := snap.Token
		state.Token = &token
	}
	return json.Marshal(record{State: state, Version: recordVersion})
}

func decodeRecord(data []byte) (*record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
