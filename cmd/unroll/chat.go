package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unroll-ai/unroll/internal/domain/chat"
	"github.com/unroll-ai/unroll/internal/domain/tool"
	"github.com/unroll-ai/unroll/internal/infra/config"
	"github.com/unroll-ai/unroll/internal/infra/llm"
)

const (
	flagConversation = "conversation"
	flagOffline      = "offline"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `chat --user-id N [--conversation N] [--offline] "question"`,
		Short: "Ask the assistant one question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runChat,
	}
	cmd.Flags().Int64(flagUserID, 0, "Caller the question is asked as (required)")
	cmd.Flags().Int64(flagConversation, 0, "Continue this conversation instead of starting a new one")
	cmd.Flags().Bool(flagOffline, false, "Use a local scripted model that lists the caller's jobs")
	config.AddFlags(cmd, storageFlags...)
	config.AddFlags(cmd, modelFlags...)
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID, err := requireUserID(cmd)
	if err != nil {
		return err
	}
	in := chat.Input{CallerID: userID, Message: strings.Join(args, " ")}
	if id, _ := cmd.Flags().GetInt64(flagConversation); id != 0 {
		in.ConversationID = &id
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	profile, err := loadProfile(cfg.Agent)
	if err != nil {
		return err
	}

	var model llm.ChatModel
	if offline, _ := cmd.Flags().GetBool(flagOffline); offline {
		model = llm.NewOfflineModel(string(tool.GetAllJobs))
	} else if model, err = newModel(cfg.LLM); err != nil {
		return err
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	asst, err := newAssistant(db, model, profile, nil, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for ev := range asst.service.Stream(ctx, in) {
		switch ev.Type {
		case chat.EventMeta:
			logger.Debug("conversation", "id", ev.ConversationID)
		case chat.EventToken:
			fmt.Fprint(out, ev.Content) //nolint:errcheck
		case chat.EventError:
			fmt.Fprintln(out) //nolint:errcheck
			return errors.New(ev.Content)
		case chat.EventDone:
			fmt.Fprintln(out) //nolint:errcheck
		}
	}
	return ctx.Err()
}
