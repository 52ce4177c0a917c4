package catalog

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/leomillan/movierec/pkg/repo"
)

// newMovieRepo creates a Neo4j-backed repository for Movie nodes.
func newMovieRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[Movie, int64] {
	return repo.NewNeo4jRepo[Movie, int64](
		driver,
		"Movie",
		movieToMap,
		movieFromRecord,
	)
}

// newUserRepo creates a Neo4j-backed repository for User nodes.
func newUserRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[User, int64] {
	return repo.NewNeo4jRepo[User, int64](
		driver,
		"User",
		userToMap,
		userFromRecord,
	)
}

func movieToMap(m Movie) map[string]any {
	props := map[string]any{
		"id":           m.ID,
		"name":         m.Name,
		"url":          m.URL,
		"genres":       m.Genres,
		"release_date": m.ReleaseDate,
	}
	if m.Embedding != nil {
		props["embedding"] = embeddingParam(m.Embedding)
	}
	return props
}

func movieFromRecord(rec *neo4j.Record) (Movie, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Movie{}, err
	}
	props := node.Props
	return Movie{
		ID:          int64Prop(props, "id"),
		Name:        strProp(props, "name"),
		URL:         strProp(props, "url"),
		Genres:      stringsProp(props, "genres"),
		ReleaseDate: timeProp(props, "release_date"),
		Embedding:   embeddingProp(props, "embedding"),
	}, nil
}

func userToMap(u User) map[string]any {
	props := map[string]any{
		"id":            u.ID,
		"name":          u.Name,
		"year_of_birth": u.YearOfBirth,
		"gender":        u.Gender,
		"zipcode":       u.Zipcode,
		"occupation":    u.Occupation,
		"active_since":  u.ActiveSince,
	}
	if u.Embedding != nil {
		props["embedding"] = embeddingParam(u.Embedding)
	}
	return props
}

func userFromRecord(rec *neo4j.Record) (User, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return User{}, err
	}
	props := node.Props
	return User{
		ID:          int64Prop(props, "id"),
		Name:        strProp(props, "name"),
		YearOfBirth: int(int64Prop(props, "year_of_birth")),
		Gender:      strProp(props, "gender"),
		Zipcode:     strProp(props, "zipcode"),
		Occupation:  strProp(props, "occupation"),
		ActiveSince: timeProp(props, "active_since"),
		Embedding:   embeddingProp(props, "embedding"),
	}, nil
}

// --- node property helpers ---

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func int64Prop(props map[string]any, key string) int64 {
	if n, ok := props[key].(int64); ok {
		return n
	}
	return 0
}

func timeProp(props map[string]any, key string) time.Time {
	if t, ok := props[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}

func stringsProp(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func embeddingProp(props map[string]any, key string) []float32 {
	raw, ok := props[key].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

// embeddingParam converts an embedding to a Neo4j list parameter.
func embeddingParam(embedding []float32) []any {
	out := make([]any, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}

// --- record column helpers ---

func stringVal(rec *neo4j.Record, key string) string {
	if v, ok := rec.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func int64Val(rec *neo4j.Record, key string) int64 {
	if v, ok := rec.Get(key); ok {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return 0
}

func floatVal(rec *neo4j.Record, key string) float64 {
	if v, ok := rec.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return 0
}

func timeVal(rec *neo4j.Record, key string) time.Time {
	if v, ok := rec.Get(key); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func stringsVal(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, it := range raw {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func embeddingVal(rec *neo4j.Record, key string) []float32 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, it := range raw {
		if f, ok := it.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}
