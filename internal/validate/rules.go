package validate

// Field denylists per memory type. These enforce the trust boundary:
// an upstream proposal may describe, but only MSP may assert computed
// metrics, physiology, memory-control decisions, or emotion categories.

// episodicForbidden applies to episodic proposals at any nesting depth.
var episodicForbidden = asSet([]string{
	// Metrics and scores (MSP computation only)
	"RI",
	"RIM",
	"Resonance_impact",
	"salience_score",
	"memory_color_ref",

	// Physiology internals (system-generated)
	"dose_input",
	"D_Remaining",
	"D_Cumulative",
	"hormone_level",
	"PK_state",

	// Memory control (MSP authority only)
	"promotion_level",
	"write_mode",
	"admission_priority",

	// Categorical emotion labels
	"emotion_label",
	"primary_emotion",
	"emotional_label",
})

// semanticProposalForbidden applies to semantic proposals before MSP
// attaches its authoritative fields. A proposer asserting any of these is
// forging system state. Finalized entries need no denylist: they are typed
// records that cannot carry unknown fields.
var semanticProposalForbidden = asSet([]string{
	"promotion_level",
	"write_mode",
	"user_block",
	"semantic_id",
	"epistemic_status",
	"confidence",
	"resolution_state",
	"signal_history",
	"created_at",
	"last_updated",
})

// sensoryForbidden applies to sensory entries: no interpretation, no
// computed state, no recall-policy hints.
var sensoryForbidden = asSet([]string{
	// Interpretation
	"primary_emotion",
	"emotional_label",
	"intent",
	"meaning",
	"description_with_judgement",

	// Metrics and computed state
	"eva_matrix",
	"qualia",
	"reflex",
	"RI",
	"RIM",

	// Policy and control
	"GKS_trigger",
	"recall_priority",
	"awareness_hook",
	"promotion_hint",
})

// interpretiveKeywords must not appear in sensory raw_content. Sensory data
// is evidence, not meaning.
var interpretiveKeywords = []string{
	"emotion", "feeling", "mood", "intent", "intention", "meaning",
	"angry", "happy", "sad", "excited", "frustrated", "confused",
	"wants", "desires", "believes", "thinks", "feels",
	"aggressive", "friendly", "hostile", "warm", "cold",
	"sarcastic", "sincere", "lying", "honest",
}
