package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"syncup-service/internal/dispatch"
	"syncup-service/internal/models"
	"syncup-service/internal/repositories"
	"syncup-service/internal/telemetry"
)

// ChatHandler owns chat identity and the participant set: direct and
// group creation, creator-gated group management, and chat deletion.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	userRepo    repositories.UserRepository
	messageRepo repositories.MessageRepository
	dispatcher  *dispatch.Dispatcher
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, userRepo repositories.UserRepository, messageRepo repositories.MessageRepository, dispatcher *dispatch.Dispatcher, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		dispatcher:  dispatcher,
		audit:       audit,
	}
}

// ListChats returns the caller's chats with resolved members and the
// latest message preview, newest activity first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := userIDFromContext(c)

	chats, err := h.chatRepo.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		members, err := h.userRepo.GetUsers(c.Request.Context(), chat.Participants)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
			return
		}
		last, err := h.messageRepo.LastMessage(c.Request.Context(), chat.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load last message"})
			return
		}
		summaries = append(summaries, models.ChatSummary{Chat: chat, Members: members, LastMessage: last})
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetChat returns a single chat with resolved members.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, ok := paramID(c, "chat_id")
	if !ok {
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondChatError(c, err)
		return
	}
	members, err := h.userRepo.GetUsers(c.Request.Context(), chat.Participants)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": models.ChatSummary{Chat: chat, Members: members}})
}

// CreateDirectChat creates a 2-party chat, or returns the existing one
// for the same pair. Idempotent.
func (h *ChatHandler) CreateDirectChat(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	allExist, err := h.userRepo.AllExist(c.Request.Context(), []int64{userID, req.UserID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve users"})
		return
	}
	if !allExist {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	chat, err := h.chatRepo.CreateOrGetDirectChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// CreateGroupChat creates a group of 2 to 6 members including the
// requester, who becomes the immutable creator.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name      string  `json:"name" binding:"required"`
		AvatarURL string  `json:"avatar_url"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	memberIDs := dedupeWith(req.MemberIDs, userID)
	if len(memberIDs) < models.MinGroupMembers || len(memberIDs) > models.MaxGroupMembers {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("group must have between %d and %d members including the creator", models.MinGroupMembers, models.MaxGroupMembers)})
		return
	}

	allExist, err := h.userRepo.AllExist(c.Request.Context(), memberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve users"})
		return
	}
	if !allExist {
		c.JSON(http.StatusNotFound, gin.H{"error": "one or more users not found"})
		return
	}

	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, req.AvatarURL, memberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// RenameGroup sets a group's name. Creator only.
func (h *ChatHandler) RenameGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, ok := h.requireGroupCreator(c)
	if !ok {
		return
	}

	if err := h.chatRepo.Rename(c.Request.Context(), chat.ID, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not rename group"})
		return
	}
	chat.Name = req.Name
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// UpdateGroupAvatar sets a group's avatar. Creator only.
func (h *ChatHandler) UpdateGroupAvatar(c *gin.Context) {
	var req struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, ok := h.requireGroupCreator(c)
	if !ok {
		return
	}

	if err := h.chatRepo.SetAvatar(c.Request.Context(), chat.ID, req.AvatarURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update avatar"})
		return
	}
	chat.AvatarURL = req.AvatarURL
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// AddGroupMembers adds members to a group, skipping ones already
// present. Creator only; the result may never exceed the size bound.
func (h *ChatHandler) AddGroupMembers(c *gin.Context) {
	var req struct {
		MemberIDs []int64 `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, ok := h.requireGroupCreator(c)
	if !ok {
		return
	}

	toAdd := make([]int64, 0, len(req.MemberIDs))
	for _, id := range dedupeWith(req.MemberIDs) {
		if !chat.HasParticipant(id) {
			toAdd = append(toAdd, id)
		}
	}
	if len(toAdd) == 0 {
		c.JSON(http.StatusOK, gin.H{"chat": chat})
		return
	}
	if len(chat.Participants)+len(toAdd) > models.MaxGroupMembers {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("group cannot exceed %d members", models.MaxGroupMembers)})
		return
	}

	allExist, err := h.userRepo.AllExist(c.Request.Context(), toAdd)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve users"})
		return
	}
	if !allExist {
		c.JSON(http.StatusNotFound, gin.H{"error": "one or more users not found"})
		return
	}

	if err := h.chatRepo.AddParticipants(c.Request.Context(), chat.ID, toAdd); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add members"})
		return
	}
	chat.Participants = append(chat.Participants, toAdd...)
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// RemoveGroupMember removes a member. Creator only; the creator can
// never be removed and the group never drops below the minimum size.
func (h *ChatHandler) RemoveGroupMember(c *gin.Context) {
	memberID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	chat, ok := h.requireGroupCreator(c)
	if !ok {
		return
	}

	if memberID == chat.CreatedBy {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot remove the group creator"})
		return
	}
	if chat.HasParticipant(memberID) && len(chat.Participants)-1 < models.MinGroupMembers {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("group must keep at least %d members", models.MinGroupMembers)})
		return
	}

	if err := h.chatRepo.RemoveParticipant(c.Request.Context(), chat.ID, memberID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	remaining := make([]int64, 0, len(chat.Participants))
	for _, id := range chat.Participants {
		if id != memberID {
			remaining = append(remaining, id)
		}
	}
	chat.Participants = remaining
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// DeleteChat removes the chat and all its messages. Groups: creator
// only. Direct chats: either participant.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
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
	if chat.IsGroup {
		if chat.CreatedBy != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the group creator can delete this group"})
			return
		}
	} else if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	if err := h.chatRepo.DeleteChat(c.Request.Context(), chatID); err != nil {
		respondChatError(c, err)
		return
	}

	h.dispatcher.ChatDeleted(chatID)
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("chat %d deleted", chatID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requireGroupCreator loads the chat and enforces the creator-only
// rule shared by every group management operation.
func (h *ChatHandler) requireGroupCreator(c *gin.Context) (models.Chat, bool) {
	chatID, ok := paramID(c, "chat_id")
	if !ok {
		return models.Chat{}, false
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondChatError(c, err)
		return models.Chat{}, false
	}
	if !chat.IsGroup {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return models.Chat{}, false
	}
	if chat.CreatedBy != userIDFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can manage the group"})
		return models.Chat{}, false
	}
	return chat, true
}

func respondChatError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "chat lookup failed"})
}

// dedupeWith builds the deduplicated union of ids and extras,
// preserving first-seen order.
func dedupeWith(ids []int64, extras ...int64) []int64 {
	seen := make(map[int64]struct{}, len(ids)+len(extras))
	out := make([]int64, 0, len(ids)+len(extras))
	for _, id := range append(append([]int64{}, ids...), extras...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
