package script

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"topic-video-pipeline/types"
)

const systemPrompt = "You are a scriptwriter and video producer, skilled at creating narrated video scenes for educational purposes."

// SynthesisError is returned when the text-generation call fails or yields
// nothing usable. It always stops the run.
type SynthesisError struct {
	Topic string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("script synthesis for %q: %v", e.Topic, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Writer turns a corpus into a scene-by-scene script
type Writer struct {
	completer Completer
	model     string
}

// New creates a new script Writer. model is recorded on the Script only.
func New(completer Completer, model string) *Writer {
	return &Writer{completer: completer, model: model}
}

// Synthesize builds one prompt from the records and asks the model for
// sceneCount Scene/Narrator line pairs
func (w *Writer) Synthesize(ctx context.Context, records []types.CorpusRecord, topic string, sceneCount, wordLimit int) (*types.Script, error) {
	log.Printf("[script] Generating %d-scene script for %q (%d records, %d words)...", sceneCount, topic, len(records), wordLimit)

	prompt := BuildPrompt(BuildContext(records), topic, sceneCount, wordLimit)
	text, err := w.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, &SynthesisError{Topic: topic, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &SynthesisError{Topic: topic, Err: fmt.Errorf("empty response")}
	}

	log.Printf("[script] ✅ Script ready: %d characters", len(text))
	return &types.Script{
		Topic:       topic,
		Text:        text,
		Model:       w.model,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// BuildContext joins each record's context entry, one per block
func BuildContext(records []types.CorpusRecord) string {
	entries := make([]string, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.ContextEntry())
	}
	return strings.Join(entries, "\n")
}

// BuildPrompt embeds the context and the output format instructions
func BuildPrompt(corpusContext, topic string, sceneCount, wordLimit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a scriptwriter tasked with creating a narrated video script. The video will educate viewers about '%s'. ", topic)
	fmt.Fprintf(&sb, "Use the provided context below to create a series of %d scenes with descriptive visuals and accompanying narration according to the following instructions:\n", sceneCount)
	sb.WriteString("- Convert each scene into a prompt suitable for video-generation AI.\n")
	sb.WriteString("- Describe the subject, setting and elements in detail, including colors, shapes and textures.\n")
	sb.WriteString("- Clearly express the overall emotion or mood.\n")
	sb.WriteString("- Use simple and direct language.\n")
	sb.WriteString("- Provide instructions for camera movements (zoom, pan, tilt).\n")
	sb.WriteString("- Describe the movements of objects or characters in detail.\n")
	sb.WriteString("- Depict environmental elements such as background, time of day and weather.\n")
	fmt.Fprintf(&sb, "Make the narration engaging and factual, in a concise format with a limit of %d words in total.\n", wordLimit)
	sb.WriteString("Since it is a summarizing video, include important facts and data that give the audience a general idea about the theme, even if part of the context has to be left out.\n\n")

	sb.WriteString("### Context (you may complement it with your own knowledge if necessary):\n")
	if strings.TrimSpace(corpusContext) == "" {
		sb.WriteString("(no source material was found; rely on general knowledge)\n")
	} else {
		sb.WriteString(corpusContext)
		sb.WriteString("\n")
	}
	sb.WriteString("\n### Output Format:\n")
	fmt.Fprintf(&sb, "Write exactly %d scenes. For each scene write exactly two lines and nothing else:\n", sceneCount)
	sb.WriteString("- Scene [Number]: [description of visuals]\n")
	sb.WriteString("- Narrator [Number]: [narration content for the scene]\n")
	return sb.String()
}
