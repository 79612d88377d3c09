package workflow

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/dukex/dagstudio/pkg/models"
)

type fingerprintContent struct {
	Name  string        `json:"name"`
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// Fingerprint hashes the editable content of a workflow. Node and edge order
// does not matter: both are sorted by id before hashing.
func Fingerprint(name string, nodes []models.Node, edges []models.Edge) string {
	content := fingerprintContent{
		Name:  name,
		Nodes: models.CloneNodes(nodes),
		Edges: models.CloneEdges(edges),
	}

	slices.SortStableFunc(content.Nodes, func(a, b models.Node) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortStableFunc(content.Edges, func(a, b models.Edge) int {
		return cmp.Or(
			cmp.Compare(a.ID, b.ID),
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Target, b.Target),
		)
	})

	data, err := json.Marshal(content)
	if err != nil {
		// A body that cannot be encoded hashes the encoder error instead.
		data = []byte("unencodable:" + err.Error())
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
