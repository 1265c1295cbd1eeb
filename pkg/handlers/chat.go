package handlers

import (
	"net/http"

	"linkshare-backend/pkg/config"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/utils"
	"linkshare-backend/pkg/ws"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	config *config.Config
	svc    *service.Service
	hub    *ws.Hub
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(cfg *config.Config, svc *service.Service, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{
		config: cfg,
		svc:    svc,
		hub:    hub,
	}
}

// List 返回按时间顺序排列的聊天记录
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	messages, err := h.svc.ListMessages()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, messages)
}

// Send 发送消息，未登录时以 Guest 身份发送
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.ChatSendRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	username := ""
	if viewer := viewerFromContext(r); viewer != nil {
		username = viewer.Username
	}

	message, err := h.svc.SendMessage(username, req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// 实时推送给所有在线客户端
	if h.hub != nil {
		h.hub.Broadcast(ws.EventNewMessage, message)
	}

	utils.WriteCreatedResponse(w, message)
}
