package index

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"ragpipe/internal/preprocess/unstructured"
	"ragpipe/internal/record"
	"ragpipe/internal/storage"
)

// metadataKeys are copied from items into document metadata.
var metadataKeys = []string{"name", "email", "school", "role"}

const metadataMaxLen = 100

var idSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragpipe/documents"))

// DocumentID is stable for a section and position.
func DocumentID(section string, i int) string {
	return uuid.NewSHA1(idSpace, []byte(section+"#"+strconv.Itoa(i))).String()
}

// Documents converts combined data into documents without embeddings.
//
// Each object in a list section becomes one document whose content is its
// non-blank string fields as "key: value" lines, or the compact object when
// it has none. Non-object list entries and non-list sections are ignored.
// Entries under ChunksKey become one document per chunk.
func Documents(combined record.Record) ([]storage.Document, error) {
	var docs []storage.Document
	for _, f := range combined {
		if f.Key == ChunksKey || !record.IsArray(f.Value) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(f.Value, &items); err != nil {
			return nil, err
		}
		for i, raw := range items {
			if !record.IsObject(raw) {
				continue
			}
			var item record.Record
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, err
			}
			docs = append(docs, itemDocument(f.Key, i, len(items), item, raw))
		}
	}

	raw, ok := combined.Get(ChunksKey)
	if !ok || !record.IsArray(raw) {
		return docs, nil
	}
	var chunks []json.RawMessage
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, err
	}
	for i, c := range chunks {
		if !record.IsObject(c) {
			continue
		}
		var ch unstructured.Chunk
		if err := json.Unmarshal(c, &ch); err != nil {
			return nil, err
		}
		docs = append(docs, storage.Document{
			ID:      DocumentID(ChunksKey, i),
			Content: ch.Chunk,
			Metadata: map[string]string{
				"source": ch.Source,
				"page":   strconv.Itoa(ch.Page),
				"type":   "unstructured",
			},
		})
	}
	return docs, nil
}

func itemDocument(section string, i, total int, item record.Record, raw json.RawMessage) storage.Document {
	content := item.Lines()
	if content == "" {
		content = record.Text(raw)
	}
	md := map[string]string{
		"source":      section,
		"item_id":     strconv.Itoa(i),
		"total_items": strconv.Itoa(total),
	}
	for _, k := range metadataKeys {
		if v, ok := item.Get(k); ok {
			md[k] = record.Truncate(record.Text(v), metadataMaxLen)
		}
	}
	return storage.Document{ID: DocumentID(section, i), Content: content, Metadata: md}
}
