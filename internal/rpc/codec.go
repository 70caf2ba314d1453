package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/shiftsync/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecordToStruct converts rec through its JSON form. Numbers become
// doubles, so integers above 2^53 lose precision.
func RecordToStruct(rec models.Record) (*structpb.Struct, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.Key(), err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.Key(), err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.Key(), err)
	}
	return s, nil
}

func RecordFromStruct(s *structpb.Struct) (models.Record, error) {
	var rec models.Record
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func RecordsToList(recs []models.Record) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(recs))}
	for _, r := range recs {
		s, err := RecordToStruct(r)
		if err != nil {
			return nil, err
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return list, nil
}

func RecordsFromList(list *structpb.ListValue) ([]models.Record, error) {
	out := make([]models.Record, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("decode record %d: not an object", i)
		}
		r, err := RecordFromStruct(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// KeyStruct builds the Load request.
func KeyStruct(table models.Table, id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"table": structpb.NewStringValue(string(table)),
		"id":    structpb.NewStringValue(id),
	}}
}

// KeyFromStruct reads a Load request.
func KeyFromStruct(s *structpb.Struct) (models.Table, string, error) {
	table, err := models.ParseTable(s.GetFields()["table"].GetStringValue())
	if err != nil {
		return "", "", err
	}
	id := s.GetFields()["id"].GetStringValue()
	if id == "" {
		return "", "", fmt.Errorf("missing record id")
	}
	return table, id, nil
}
