// internal/session/session_test.go
package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
)

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	sess := New("u1", "order system")
	sess.Update(func(d *Data) {
		d.Artifacts = map[diagram.Type]*diagram.Artifact{
			diagram.TypeFlowchart: {Type: diagram.TypeFlowchart, Code: "flowchart TD\n  A --> B", Valid: true},
		}
		d.Quality = map[diagram.Type]*quality.Record{
			diagram.TypeFlowchart: {Score: 50, Level: quality.LevelPoor, Suggestions: []string{"add labels"}},
		}
	})

	snap := sess.Snapshot()

	sess.Update(func(d *Data) {
		artifact := d.Artifacts[diagram.TypeFlowchart]
		artifact.Notes = append(artifact.Notes, "repair generation failed: boom")
		d.Quality[diagram.TypeFlowchart].Score = 80
		d.Quality[diagram.TypeFlowchart].Suggestions[0] = "changed"
	})

	assert.Empty(t, snap.Artifacts[diagram.TypeFlowchart].Notes)
	assert.Equal(t, 50.0, snap.Quality[diagram.TypeFlowchart].Score)
	assert.Equal(t, []string{"add labels"}, snap.Quality[diagram.TypeFlowchart].Suggestions)
}

func TestSnapshotConcurrentWithRepairNotes(t *testing.T) {
	sess := New("u1", "order system")
	sess.Update(func(d *Data) {
		d.Artifacts = map[diagram.Type]*diagram.Artifact{
			diagram.TypeFlowchart: {Type: diagram.TypeFlowchart, Code: "flowchart TD\n  A --> B", Valid: true},
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			sess.Update(func(d *Data) {
				artifact := d.Artifacts[diagram.TypeFlowchart]
				artifact.Notes = append(artifact.Notes, fmt.Sprintf("note %d", i))
			})
		}
	}()

	for i := 0; i < 200; i++ {
		snap := sess.Snapshot()
		_ = len(snap.Artifacts[diagram.TypeFlowchart].Notes)
	}
	<-done
}

func TestUpdateDroppedAfterFinalize(t *testing.T) {
	r := newTestRegistry(t, nil)
	sess := New("u1", "order system")
	require.NoError(t, r.Create(sess))
	require.True(t, r.Finalize(sess.ID(), StatusCancelled, "cancelled by user"))

	sess.Update(func(d *Data) { d.ErrorMessage = "late write" })
	sess.SetStage("late_stage")

	snap := sess.Snapshot()
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Equal(t, "cancelled by user", snap.ErrorMessage)
	assert.Empty(t, snap.CurrentStage)
}

func TestArtifactClone(t *testing.T) {
	assert.Nil(t, (*diagram.Artifact)(nil).Clone())

	original := &diagram.Artifact{
		Type:  diagram.TypeFlowchart,
		Code:  "flowchart TD\n  A --> B",
		Notes: []string{"first"},
	}
	clone := original.Clone()
	clone.Notes = append(clone.Notes, "second")

	assert.Equal(t, []string{"first"}, original.Notes)
}
