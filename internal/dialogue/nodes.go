package dialogue

// Node classes emitted by the builder.
const (
	ClassCustomVoice       = "FB_Qwen3TTSCustomVoice"
	ClassVoiceDesign       = "FB_Qwen3TTSVoiceDesign"
	ClassInputAudio        = "SwarmInputAudio"
	ClassVoiceClonePrompt  = "FB_Qwen3TTSVoiceClonePrompt"
	ClassRoleBank          = "FB_Qwen3TTSRoleBank"
	ClassDialogueInference = "FB_Qwen3TTSDialogueInference"
	ClassSaveAudioWS       = "SwarmSaveAudioWS"
)

// Id family bases. Families are 100 apart, more than MaxVoices, so no two
// families can hand out the same id.
const (
	CustomVoiceBase       = 63000
	VoiceDesignBase       = 63100
	InputAudioBase        = 63200
	VoiceClonePromptBase  = 63300
	RoleBankBase          = 63400
	DialogueInferenceBase = 63500
	SaveAudioWSBase       = 63600

	// VideoInjectionBase is the base of the video splicer's families, which
	// sit at +400 through +700.
	VideoInjectionBase = 63700
)

// Fixed node settings. They are not user-configurable.
const (
	PlaceholderReferenceText    = "Reference sample."
	PlaceholderStyleInstruction = "Neutral speaking style."

	CustomVoiceDevice    = "cuda"
	CustomVoicePrecision = "bf16"
	CustomVoiceLanguage  = "English"
	CustomVoiceSpeaker   = "Serena"

	VoiceDesignDevice    = "auto"
	VoiceDesignPrecision = "bf16"
	VoiceDesignLanguage  = "English"

	ClonePromptDevice    = "auto"
	ClonePromptPrecision = "bf16"

	DialogueDevice    = "auto"
	DialoguePrecision = "bf16"
	DialogueLanguage  = "Auto"

	PauseLinebreak = 0.5
	PeriodPause    = 0.4
	CommaPause     = 0.2
	QuestionPause  = 0.6
	HyphenPause    = 0.3
	MergeOutputs   = true
	BatchSize      = 4

	// DialogueSeedOffset is added to the base seed for the inference node.
	DialogueSeedOffset = 9

	inputAudioDescription = "Reference audio file for voice cloning."
)
