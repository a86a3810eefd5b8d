package notes

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// UnmarshalJSON reads a stored or imported note. Any JSON scalar is
// accepted for each field, so a bundle written by another client with a
// numeric accountIndex or content still decodes; the stored entry keeps
// its original JSON.
func (n *Note) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*n = Note{
		Content:            scalarString(fields["content"]),
		Timestamp:          scalarInt(fields["timestamp"]),
		Platform:           Platform(scalarString(fields["platform"])),
		ThreadID:           scalarString(fields["threadId"]),
		Account:            scalarString(fields["account"]),
		AccountEmail:       scalarString(fields["accountEmail"]),
		AccountIndex:       scalarString(fields["accountIndex"]),
		OriginalThreadID:   scalarString(fields["originalThreadId"]),
		Subject:            scalarString(fields["subject"]),
		LastModified:       scalarInt(fields["lastModified"]),
		ImportedAt:         scalarInt(fields["importedAt"]),
		OriginalBackupDate: scalarString(fields["originalBackupDate"]),
	}
	return nil
}

func decodeScalar(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// scalarString renders strings, numbers and booleans as text; anything
// else reads as empty.
func scalarString(raw json.RawMessage) string {
	switch v := decodeScalar(raw).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// scalarInt reads epoch-millisecond fields written as numbers or numeric strings
func scalarInt(raw json.RawMessage) int64 {
	var s string
	switch v := decodeScalar(raw).(type) {
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}
