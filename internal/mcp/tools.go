package mcp

import "github.com/mark3labs/mcp-go/mcp"

func userIDParam() mcp.ToolOption {
	return mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Identifier of the user on whose behalf the call is made"),
	)
}

func rolesParam() mcp.ToolOption {
	return mcp.WithString("roles",
		mcp.Description("Comma separated collaborator roles of the caller"),
	)
}

func contextParam() mcp.ToolOption {
	return mcp.WithObject("context",
		mcp.Description("Interaction context: domain, task_type, user_expertise, stakes, time_sensitivity, history, available_resources"),
	)
}

var assessUncertaintyTool = mcp.NewTool("assess_uncertainty",
	mcp.WithDescription("Score how uncertain a piece of AI output is (epistemic, aleatoric, confidence) and recommend an engagement strategy. Has no side effects."),
	userIDParam(),
	rolesParam(),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("The output to assess"),
	),
	contextParam(),
)

var verifyWithEngagementTool = mcp.NewTool("verify_with_engagement",
	mcp.WithDescription("Assess output and, when a human should be involved, open a clarification session and return its first questions."),
	userIDParam(),
	rolesParam(),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("The output to verify"),
	),
	contextParam(),
	mcp.WithString("session_id",
		mcp.Description("Conversation the output belongs to"),
	),
	mcp.WithNumber("engagement_threshold",
		mcp.Description("Overall uncertainty at or above which a human is always consulted (0 disables)"),
	),
	mcp.WithArray("collaborators",
		mcp.Description("Additional user ids allowed to answer the session"),
	),
)

var clarificationRespondTool = mcp.NewTool("clarification_respond",
	mcp.WithDescription("Answer a question of a clarification session. Returns the next questions or the refined output once the session ends."),
	userIDParam(),
	rolesParam(),
	mcp.WithString("clarification_session_id",
		mcp.Required(),
		mcp.Description("Session returned by verify_with_engagement"),
	),
	mcp.WithString("question_id",
		mcp.Required(),
		mcp.Description("Question being answered"),
	),
	mcp.WithString("response_text",
		mcp.Required(),
		mcp.Description("The human answer"),
	),
	mcp.WithNumber("confidence",
		mcp.Required(),
		mcp.Description("How sure the human is of the answer, between 0 and 1"),
	),
)

var clarificationStatusTool = mcp.NewTool("clarification_status",
	mcp.WithDescription("Report the stage, progress and confidence of a clarification session."),
	userIDParam(),
	rolesParam(),
	mcp.WithString("clarification_session_id",
		mcp.Required(),
		mcp.Description("Session to inspect"),
	),
)

var simulateEngagementTool = mcp.NewTool("simulate_engagement",
	mcp.WithDescription("Preview the engagement strategy and first questions for some output without creating a session."),
	userIDParam(),
	rolesParam(),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("The output to simulate"),
	),
	contextParam(),
)
