package stages

import (
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/internal/workflow"
)

// PromptGenerationRouter fans out one branch per perspective to worker.
// Feedback recorded at feedbackNode is handed to every branch. No
// perspectives means no branches.
func PromptGenerationRouter(worker, feedbackNode string) workflow.Router {
	return func(st *state.State) (workflow.Route, error) {
		var feedback string
		if fb, ok := st.FeedbackFor(feedbackNode); ok {
			feedback = fb.Text
		}

		branches := make([]workflow.Branch, len(st.Perspectives))
		for i, p := range st.Perspectives {
			branches[i] = workflow.Branch{
				Worker: worker,
				Payload: PerspectivePromptPayload{
					Perspective:      p,
					BrandDescription: st.BrandDescription,
					NumberOfPrompts:  st.NumberOfPrompts,
					Region:           orDefault(st.BrandInfo.Region, DefaultRegion),
					Language:         orDefault(st.BrandInfo.Language, DefaultLanguage),
					Feedback:         feedback,
				},
			}
		}
		return workflow.FanOut(branches...), nil
	}
}

// PromptExecutionRouter fans out one branch per prompt to worker.
func PromptExecutionRouter(worker string) workflow.Router {
	return func(st *state.State) (workflow.Route, error) {
		branches := make([]workflow.Branch, len(st.Prompts))
		for i, p := range st.Prompts {
			branches[i] = workflow.Branch{
				Worker:  worker,
				Payload: PromptExecutionPayload{Prompt: p},
			}
		}
		return workflow.FanOut(branches...), nil
	}
}
