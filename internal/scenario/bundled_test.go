// internal/scenario/bundled_test.go
package scenario

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/step"
)

func TestBundledScenariosLoad(t *testing.T) {
	scenarios, err := LoadAll([]string{filepath.Join("..", "..", "scenarios")}, loadOpts)
	require.NoError(t, err)

	byName := map[string]*Scenario{}
	for _, sc := range scenarios {
		byName[sc.Name] = sc
	}
	require.Len(t, byName, 7)

	login := byName["Login"]
	require.NotNil(t, login)
	assert.Equal(t, "admin@example.com", login.Steps[1].Value)

	chat := byName["Chat"]
	require.NotNil(t, chat)
	last := chat.Steps[len(chat.Steps)-2]
	assert.Equal(t, step.KindAssertText, last.Kind)
	assert.Equal(t, "Hello from the verification script!", last.Expect)
	require.NotNil(t, last.Target.Nth)
	assert.Equal(t, locator.PosLast, last.Target.Nth.Pos)

	picking := byName["Picking and packing"]
	require.NotNil(t, picking)
	assert.Equal(t, 19, picking.Count())

	styling := byName["Dynamic region styling"]
	require.NotNil(t, styling)
	assert.Equal(t, step.KindSleep, styling.Steps[0].Kind)
	assert.Equal(t, "background-color: #ff00ff;", styling.Steps[len(styling.Steps)-2].Expect)
}
