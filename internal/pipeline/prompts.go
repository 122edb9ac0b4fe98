package pipeline

import (
	"fmt"
	"strings"

	"github.com/mathtoons/mathtoons/internal/models"
	"github.com/mathtoons/mathtoons/internal/services"
)

// buildStoryboardPrompt constructs the storyboard generation prompt. The
// rules pin the output to a bare JSON object, bound the scene count to
// [15, 30] for 2–3 minutes of video, and force Devanagari narration for
// Hindi and Marathi. Scene descriptions stay in English — they feed the
// render-script generator, not the narrator.
func buildStoryboardPrompt(req models.GenerationRequest) string {
	artifacts := strings.Join(req.Artifacts, ", ")

	return fmt.Sprintf(`You are a JSON data generation bot. Your ONLY task is to take the following details and convert them into a valid JSON object.

**DETAILS:**
- Student Name: %s
- Topic: "%s"
- Artifacts: %s
- Host: %s
- Target Language: %s

**RULES:**
1. YOU MUST OUTPUT A SINGLE, VALID JSON OBJECT AND NOTHING ELSE.
2. The JSON object must have a single key "storyboard", which is a list of scene objects with keys "scene_number", "scene_description", and "narration".
3. DURATION RULE: To ensure the final video runs 120 to 180 seconds, you MUST generate a MINIMUM of 15 scenes and a MAXIMUM of 30 scenes.
4. COHERENCE RULE: The scenes MUST follow a clear, engaging narrative as if the narrator is the %s (Introduction -> Problem Setup -> Steps -> Solution -> Explanation -> Practice Question -> Solution -> Conclusion). Each scene must logically advance the story.
5. PAUSING RULE: The narration MUST use three consecutive periods (...) to indicate short, child-friendly pauses, and MUST aim for 5-10 seconds of descriptive speech per scene.
6. LANGUAGE RULE: If the target language is 'hi' (Hindi) or 'mr' (Marathi), the entire "narration" MUST be written in the Devanagari script. If the language is 'en', use English.
7. The "scene_description" MUST be simple visual instructions for an animated scene (these remain in English).
8. DO NOT write any introductory text, explanations, or conversational replies. Your entire response must be ONLY the JSON.

GENERATE THE JSON NOW.`,
		req.StudentName, req.Topic, artifacts, req.CharacterPreset, req.Lang, req.CharacterPreset)
}

// manimScriptPrompt is the system portion of the master render-script
// prompt. The constraints exist because the generated code runs unreviewed:
// fixed class names keep the render adapter's contract, the asset allowlist
// prevents invented file paths, and the banned constants are the ones the
// engine version in production rejects.
const manimScriptPrompt = `You are a Manim code generator. Your ONLY job is to write simple, error-free Python code. You must follow these rules PRECISELY.

1. MANDATORY IMPORT: ALWAYS start your code with 'from manim import *'.
2. CLASS NAMES ARE FIXED: The classes must be named Scene1, Scene2, Scene3, etc., one class per scene description below.
3. ALLOWED ASSETS ONLY: "assets/dino.png", "assets/mango.png", "assets/doraemon.png", "assets/chhota_bheem.png", "assets/backgrounds/bg1.png" to "assets/backgrounds/bg5.png", "assets/apple.png", "assets/banana.png", "assets/avocado.png", "assets/panda.png", "assets/car.png", "assets/clock.png", "assets/monkey.png", "assets/truck.png", "assets/carrot.png", "assets/pencil.png", "assets/lion.png", "assets/bottle.png", "assets/tomato.png". DO NOT make up paths.
4. BACKGROUND RULE: Use a different background file (bg1.png to bg5.png) for each scene.
5. TEXT COLOR RULE: All Text objects MUST use dark, kid-friendly colors such as "#C71585", "#8B0000", or "#800080". Never light colors or plain black.
6. POSITIONING RULE: Objects must NEVER overlap the character, text, or main action. Use to_corner(UP/DOWN/LEFT/RIGHT) or next_to with generous spacing.
7. QUALITY RULE: Set config["quality"] = "medium_quality" at the very top of the script (720p).
8. ALLOWED CONSTANTS: Only UP, DOWN, LEFT, RIGHT, ORIGIN. CENTER and FRAME_CENTER are BANNED.
9. GROUPING: Group for ImageMobject, VGroup for Text.
10. BANNED FUNCTIONS: add_updater(), set_opacity(), or anything that mutates state outside self.play.

Respond with ONLY the Python code, in a single code block.`

// browserScriptPrompt requests the animation-JSON master artifact consumed
// by the headless-browser recorder.
const browserScriptPrompt = `You are an animation data generator for a browser-based 2D scene player. Output a single valid JSON object and nothing else.

The object must have one key "scenes": a list with one entry per scene description below, each entry {"scene_number": <n>, "animation": {...}}. The "animation" object describes sprites, positions, text labels, and movements using only these verbs: "enter", "move", "bounce", "fade", "wave". Use sprite names from this set only: dino, mango, doraemon, chhota_bheem, apple, banana, avocado, panda, car, clock, monkey, truck, carrot, pencil, lion, bottle, tomato, plus backgrounds bg1 to bg5.

Respond with ONLY the JSON.`

// buildMasterScriptPrompt assembles the full master-script request: the
// renderer-specific system rules plus every scene description labeled by
// scene number.
func buildMasterScriptPrompt(kind services.ScriptKind, storyboard models.Storyboard) string {
	var b strings.Builder

	if kind == services.ScriptKindAnimationJSON {
		b.WriteString(browserScriptPrompt)
	} else {
		b.WriteString(manimScriptPrompt)
	}

	b.WriteString("\n\n**Scene Descriptions:**\n")
	for _, scene := range storyboard.Scenes {
		fmt.Fprintf(&b, "\n**Scene %d Description:**\n%s\n", scene.SceneNumber, scene.SceneDescription)
	}

	return b.String()
}
