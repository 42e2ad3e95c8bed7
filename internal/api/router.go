package api

import "github.com/gin-gonic/gin"

// SetupRouter wires the ingest process's HTTP surface: POST /events plus a
// health check. This is the minimal transport EventIngest needs to be
// reachable at all; the wire protocol itself is not otherwise prescribed.
func SetupRouter(eventsHandler *EventsHandler) *gin.Engine {
	router := gin.Default()
	router.GET("/healthz", eventsHandler.Healthz)
	router.POST("/events", eventsHandler.IngestEvent)
	return router
}
