package websocket

import (
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
)

// processMessage dispatches one inbound text frame.
func (c *Client) processMessage(message []byte) {
	req, err := domain.ParseClientRequest(message)
	if err != nil {
		c.logger.Debug("Rejected client request", zap.Error(err))
		c.hub.reply(c, domain.ErrorReply{Error: err.Error()})
		return
	}

	switch req.ReqType {
	case domain.RequestTypeCancel:
		c.handleCancel()
	case domain.RequestTypePrompt:
		c.handlePrompt(req)
	}
}

// handleCancel deactivates the session. Running pipelines notice at their
// next checkpoint and stop without sending anything else.
func (c *Client) handleCancel() {
	c.hub.sessions.Remove(c.sessionID)
	c.logger.Info("Session cancelled by client")
}

func (c *Client) handlePrompt(req domain.ClientRequest) {
	c.hub.sessions.Add(c.sessionID)

	c.hub.reply(c, domain.StatusReply{Status: domain.StatusMsgReceived})
	c.hub.reply(c, domain.StatusReply{Status: domain.StatusThinking})

	speech := c.speechDefaults
	if req.Voice != "" {
		speech.Voice = req.Voice
	}
	completion := repositories.NewPromptRequest(req.Text)

	c.logger.Info("Prompt accepted", zap.Int("textLength", len(req.Text)))

	go c.processor.ProcessChain(c.ctx, completion, speech, c.sessionID)
}
