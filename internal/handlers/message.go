package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"syncup-service/internal/dispatch"
	"syncup-service/internal/models"
	"syncup-service/internal/repositories"
	"syncup-service/internal/telemetry"
)

// MessageHandler serves the message ledger and the deletion/clearing
// state machine.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	dispatcher  *dispatch.Dispatcher
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, dispatcher *dispatch.Dispatcher, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		dispatcher:  dispatcher,
		audit:       audit,
	}
}

// ListMessages returns the chat's messages in creation order, minus
// the ones the caller has cleared for themselves.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	chatID, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msgs, err := h.messageRepo.ListForUser(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if err := h.resolveSenders(c, msgs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage appends a message to the ledger and fans it out to the
// chat room and every other participant's personal channel.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	chatID, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondChatError(c, err)
		return
	}
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	var req struct {
		Content     string                `json:"content"`
		Attachments models.AttachmentList `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content or attachments required"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chatID, userID, req.Content, req.Attachments)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	if sender, err := h.userRepo.GetUser(c.Request.Context(), userID); err == nil {
		msg.Sender = &models.UserRef{ID: sender.ID, Username: sender.Username, FullName: sender.FullName, AvatarURL: sender.AvatarURL}
	} else {
		log.Printf("send message: resolve sender %d: %v", userID, err)
	}

	h.dispatcher.MessageCreated(chat, msg)
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkRead adds the caller to seen_by on every message in the chat
// authored by someone else, then broadcasts the receipt. Idempotent.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	chatID, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	if err := h.messageRepo.MarkRead(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	h.dispatcher.MessageRead(chatID, userID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteMessage soft-deletes one message. In a direct chat only the
// original sender may delete; in a group only the creator, and the
// redaction is marked as an admin action. Terminal either way.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		respondMessageError(c, err)
		return
	}
	chat, err := h.chatRepo.GetChat(c.Request.Context(), msg.ChatID)
	if err != nil {
		respondChatError(c, err)
		return
	}

	byAdmin := false
	if chat.IsGroup {
		if chat.CreatedBy != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the group creator can delete messages"})
			return
		}
		byAdmin = true
	} else if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete this message"})
		return
	}

	if err := h.messageRepo.SoftDelete(c.Request.Context(), messageID, userID, byAdmin); err != nil {
		respondMessageError(c, err)
		return
	}

	h.dispatcher.MessageDeleted(chat.ID, messageID, userID, byAdmin)
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("message %d deleted in chat %d", messageID, chat.ID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusOK, gin.H{"ok": true, "soft_deleted": true})
}

// ClearChat hard-deletes every message in the chat for everyone.
// Direct chats: either participant; groups: creator only.
func (h *MessageHandler) ClearChat(c *gin.Context) {
	chatID, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondChatError(c, err)
		return
	}
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}
	if chat.IsGroup && chat.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group creator can clear messages"})
		return
	}

	if err := h.messageRepo.PurgeChat(c.Request.Context(), chatID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear chat"})
		return
	}

	h.dispatcher.ChatCleared(chatID)
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("chat %d cleared", chatID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ClearChatForMe hides every currently-visible message of the chat
// from the caller only. Other participants are unaffected and no event
// is broadcast. Safe to repeat.
func (h *MessageHandler) ClearChatForMe(c *gin.Context) {
	chatID, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	if err := h.messageRepo.HideAllForUser(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ClearAll hard-deletes the messages of every chat the caller
// participates in.
func (h *MessageHandler) ClearAll(c *gin.Context) {
	h.clearAcrossChats(c, false)
}

// ClearAllGroups hard-deletes the messages of every group chat the
// caller participates in.
func (h *MessageHandler) ClearAllGroups(c *gin.Context) {
	h.clearAcrossChats(c, true)
}

func (h *MessageHandler) clearAcrossChats(c *gin.Context, groupsOnly bool) {
	userID := userIDFromContext(c)

	chatIDs, err := h.chatRepo.ListChatIDsForUser(c.Request.Context(), userID, groupsOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	cleared, err := h.messageRepo.PurgeChats(c.Request.Context(), chatIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear chats"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("bulk clear of %d chats (groups_only=%v)", cleared, groupsOnly), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusOK, gin.H{"ok": true, "cleared_chats": cleared})
}

// resolveSenders attaches display fields for every distinct sender.
func (h *MessageHandler) resolveSenders(c *gin.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	senderIDs := make([]int64, 0, len(msgs))
	seen := map[int64]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	users, err := h.userRepo.GetUsers(c.Request.Context(), senderIDs)
	if err != nil {
		return err
	}
	refs := make(map[int64]models.UserRef, len(users))
	for _, u := range users {
		refs[u.ID] = models.UserRef{ID: u.ID, Username: u.Username, FullName: u.FullName, AvatarURL: u.AvatarURL}
	}
	for i := range msgs {
		if ref, ok := refs[msgs[i].SenderID]; ok {
			r := ref
			msgs[i].Sender = &r
		}
	}
	return nil
}

func respondMessageError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "message lookup failed"})
}
