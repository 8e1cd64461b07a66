package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"syncup-service/internal/dispatch"
	"syncup-service/internal/mocks"
	"syncup-service/internal/models"
	"syncup-service/internal/ws"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/messages/:chat_id", handler.ListMessages)
	r.POST("/messages/:chat_id", handler.SendMessage)
	r.POST("/messages/:chat_id/read", handler.MarkRead)
	r.DELETE("/messages/item/:message_id", handler.DeleteMessage)
	r.DELETE("/messages/:chat_id/all", handler.ClearChat)
	r.DELETE("/messages/:chat_id/me", handler.ClearChatForMe)
	r.DELETE("/messages/clear/all", handler.ClearAll)
	r.DELETE("/messages/groups/clear/all", handler.ClearAllGroups)
	return r
}

func newMessageHandler(chatRepo *mocks.ChatRepositoryMock, messageRepo *mocks.MessageRepositoryMock, userRepo *mocks.UserRepositoryMock) *MessageHandler {
	return NewMessageHandler(chatRepo, messageRepo, userRepo, dispatch.New(ws.NewHub()), newTestAudit())
}

func TestListMessagesNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("IsParticipant", mock.Anything, int64(9), int64(1)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "ListForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesResolvesSenders(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, userRepo))

	chatRepo.On("IsParticipant", mock.Anything, int64(9), int64(1)).Return(true, nil).Once()
	messageRepo.On("ListForUser", mock.Anything, int64(9), int64(1)).Return([]models.Message{
		{ID: 10, ChatID: 9, SenderID: 2, Content: "hey"},
		{ID: 11, ChatID: 9, SenderID: 1, Content: "hi"},
	}, nil).Once()
	userRepo.On("GetUsers", mock.Anything, []int64{2, 1}).Return([]models.User{
		{ID: 2, Username: "bob"}, {ID: 1, Username: "alice"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"bob"`)
	messageRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestSendMessageEmptyBody(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("GetChat", mock.Anything, int64(9)).
		Return(models.Chat{ID: 9, Participants: []int64{1, 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/9", bytes.NewBufferString(`{"content":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, userRepo))

	chatRepo.On("GetChat", mock.Anything, int64(9)).
		Return(models.Chat{ID: 9, Participants: []int64{1, 2}}, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, int64(9), int64(1), "hello", models.AttachmentList(nil)).
		Return(models.Message{ID: 42, ChatID: 9, SenderID: 1, Content: "hello"}, nil).Once()
	userRepo.On("GetUser", mock.Anything, int64(1)).Return(models.User{ID: 1, Username: "alice"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/9", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":42`)
	messageRepo.AssertExpectations(t)
}

func TestSendMessageSenderLookupFailure(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, userRepo))

	chatRepo.On("GetChat", mock.Anything, int64(9)).
		Return(models.Chat{ID: 9, Participants: []int64{1, 2}}, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, int64(9), int64(1), "hello", models.AttachmentList(nil)).
		Return(models.Message{ID: 42, ChatID: 9, SenderID: 1, Content: "hello"}, nil).Once()
	userRepo.On("GetUser", mock.Anything, int64(1)).
		Return(models.User{}, errors.New("user service down")).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/9", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":42`)
	require.NotContains(t, rec.Body.String(), `"sender"`)
	userRepo.AssertExpectations(t)
}

func TestSendMessageNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("GetChat", mock.Anything, int64(9)).
		Return(models.Chat{ID: 9, Participants: []int64{2, 3}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/9", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("IsParticipant", mock.Anything, int64(9), int64(1)).Return(true, nil).Once()
	messageRepo.On("MarkRead", mock.Anything, int64(9), int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/9/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestDeleteMessageDirectBySender(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	messageRepo.On("GetMessage", mock.Anything, int64(42)).
		Return(models.Message{ID: 42, ChatID: 9, SenderID: 1}, nil).Once()
	chatRepo.On("GetChat", mock.Anything, int64(9)).
		Return(models.Chat{ID: 9, Participants: []int64{1, 2}}, nil).Once()
	messageRepo.On("SoftDelete", mock.Anything, int64(42), int64(1), false).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/item/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestDeleteMessageDirectByRecipient(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	messageRepo.On("GetMessage", mock.Anything, int64(42)).
		Return(models.Message{ID: 42, ChatID: 9, SenderID: 2}, nil).Once()
	chatRepo.On("GetChat", mock.Anything, int64(9)).
		Return(models.Chat{ID: 9, Participants: []int64{1, 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/item/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMessageGroupByCreator(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	messageRepo.On("GetMessage", mock.Anything, int64(42)).
		Return(models.Message{ID: 42, ChatID: 4, SenderID: 3}, nil).Once()
	chatRepo.On("GetChat", mock.Anything, int64(4)).
		Return(models.Chat{ID: 4, IsGroup: true, CreatedBy: 1, Participants: []int64{1, 2, 3}}, nil).Once()
	messageRepo.On("SoftDelete", mock.Anything, int64(42), int64(1), true).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/item/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestDeleteMessageGroupSenderNotCreator(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	messageRepo.On("GetMessage", mock.Anything, int64(42)).
		Return(models.Message{ID: 42, ChatID: 4, SenderID: 1}, nil).Once()
	chatRepo.On("GetChat", mock.Anything, int64(4)).
		Return(models.Chat{ID: 4, IsGroup: true, CreatedBy: 2, Participants: []int64{1, 2, 3}}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/item/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClearGroupChatNotCreator(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("GetChat", mock.Anything, int64(4)).
		Return(models.Chat{ID: 4, IsGroup: true, CreatedBy: 2, Participants: []int64{1, 2, 3}}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/4/all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "PurgeChat", mock.Anything, mock.Anything)
}

func TestClearDirectChatByParticipant(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("GetChat", mock.Anything, int64(9)).
		Return(models.Chat{ID: 9, Participants: []int64{1, 2}}, nil).Once()
	messageRepo.On("PurgeChat", mock.Anything, int64(9)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/9/all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestClearChatForMe(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("IsParticipant", mock.Anything, int64(9), int64(1)).Return(true, nil).Once()
	messageRepo.On("HideAllForUser", mock.Anything, int64(9), int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/9/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
	messageRepo.AssertNotCalled(t, "PurgeChat", mock.Anything, mock.Anything)
}

func TestClearAllChats(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("ListChatIDsForUser", mock.Anything, int64(1), false).Return([]int64{3, 4, 5}, nil).Once()
	messageRepo.On("PurgeChats", mock.Anything, []int64{3, 4, 5}).Return(int64(3), nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/clear/all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"cleared_chats":3`)
}

func TestClearAllGroupChats(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock)))

	chatRepo.On("ListChatIDsForUser", mock.Anything, int64(1), true).Return([]int64{4}, nil).Once()
	messageRepo.On("PurgeChats", mock.Anything, []int64{4}).Return(int64(1), nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/groups/clear/all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chatRepo.AssertExpectations(t)
}
