package storage

import "encoding/json"

// knownMetadataKeys lists the JSON keys EpisodeMetadata's typed fields
// occupy, so MarshalJSON/UnmarshalJSON can separate them from Extra.
var knownMetadataKeys = []string{
	"facts", "access_tracking", "emotional_8d", "somatic_7d", "salience_score", "consolidation", "temporal_refs",
}

// episodeMetadataAlias exists purely to avoid infinite recursion into
// MarshalJSON/UnmarshalJSON when delegating to the default struct codec.
type episodeMetadataAlias EpisodeMetadata

// MarshalJSON flattens the typed fields and Extra into a single JSON object.
func (m EpisodeMetadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(episodeMetadataAlias(m))
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	for k, v := range m.Extra {
		merged[k] = v
	}
	var knownMap map[string]any
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON splits the typed fields back out from whatever is left over
// into Extra.
func (m *EpisodeMetadata) UnmarshalJSON(data []byte) error {
	var alias episodeMetadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*m = EpisodeMetadata(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownMetadataKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil
	}
	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		extra[k] = val
	}
	m.Extra = extra
	return nil
}
