package reflection

import "sarthi/models"

// ModeFor picks the workflow mode from the giver's proficiency score.
func ModeFor(proficiency, collaborativeMin int) string {
	if proficiency >= collaborativeMin {
		return models.REFLECTION_MODE_COLLABORATIVE
	}
	return models.REFLECTION_MODE_GUIDED
}
