package consult

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rbrdigital/goldcare-sub000/pkg/pagination"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/consults", h.ListSessions)

	g := api.Group("/consults/:patientId/:encounterId")
	g.GET("", h.GetConsult)
	g.DELETE("", h.DiscardConsult)
	g.GET("/completeness", h.GetCompleteness)
	g.POST("/session", h.InitializeSession)
	g.DELETE("/session", h.ClearSession)
	g.POST("/flush", h.Flush)
	g.POST("/close", h.CloseSession)

	g.PATCH("/soap", h.SetSOAPField)
	g.PATCH("/vitals", h.UpdateVitals)
	g.POST("/soap/lists/:list", h.AddListItem)
	g.DELETE("/soap/lists/:list/:index", h.RemoveListItem)

	g.POST("/prescriptions", h.AddPrescription)
	g.PATCH("/prescriptions/:id", h.UpdatePrescription)
	g.DELETE("/prescriptions/:id", h.RemovePrescription)

	g.POST("/lab-orders", h.AddLabOrder)
	g.PATCH("/lab-orders/:id", h.UpdateLabOrder)
	g.DELETE("/lab-orders/:id", h.RemoveLabOrder)

	g.POST("/imaging-orders", h.AddImagingOrder)
	g.PATCH("/imaging-orders/:id", h.UpdateImagingOrder)
	g.DELETE("/imaging-orders/:id", h.RemoveImagingOrder)

	g.POST("/outside-orders", h.AddOutsideOrder)
	g.PATCH("/outside-orders/:id", h.UpdateOutsideOrder)
	g.DELETE("/outside-orders/:id", h.RemoveOutsideOrder)

	g.PUT("/private-notes", h.SetPrivateNotes)
	g.PUT("/finished", h.SetFinished)
	g.POST("/ai-visibility/toggle", h.ToggleAIVisibility)
	g.PATCH("/ui", h.UpdateUI)
}

// fieldValue is the body of scalar SOAP and vitals updates.
type fieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (h *Handler) store(c echo.Context) (*Store, error) {
	s, err := h.registry.Open(c.Request().Context(), c.Param("patientId"), c.Param("encounterId"))
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return s, nil
}

func snapshot(c echo.Context, s *Store) error {
	return c.JSON(http.StatusOK, NewSnapshot(s.State()))
}

// -- Session --

func (h *Handler) ListSessions(c echo.Context) error {
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Slice(h.registry.Sessions(), pg))
}

// peek reads a session without opening it. Unknown sessions are 404 so reads
// never create drafts.
func (h *Handler) peek(c echo.Context) (ConsultState, error) {
	st, ok, err := h.registry.Peek(c.Request().Context(), c.Param("patientId"), c.Param("encounterId"))
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return ConsultState{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return ConsultState{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return ConsultState{}, echo.NewHTTPError(http.StatusNotFound, "consult not found")
	}
	return st, nil
}

func (h *Handler) GetConsult(c echo.Context) error {
	st, err := h.peek(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewSnapshot(st))
}

func (h *Handler) GetCompleteness(c echo.Context) error {
	st, err := h.peek(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Evaluate(st))
}

func (h *Handler) InitializeSession(c echo.Context) error {
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.InitializeSession(c.Param("patientId"), c.Param("encounterId"))
	return snapshot(c, s)
}

func (h *Handler) ClearSession(c echo.Context) error {
	s, err := h.registry.Clear(c.Request().Context(), c.Param("patientId"), c.Param("encounterId"))
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return snapshot(c, s)
}

// DiscardConsult deletes the draft outright, open or not.
func (h *Handler) DiscardConsult(c echo.Context) error {
	if err := h.registry.Discard(c.Request().Context(), c.Param("patientId"), c.Param("encounterId")); err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// CloseSession flushes the draft and releases the in-memory session. The
// draft stays in storage and is resumed by the next request.
func (h *Handler) CloseSession(c echo.Context) error {
	if err := h.registry.Close(c.Request().Context(), c.Param("patientId"), c.Param("encounterId")); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Flush(c echo.Context) error {
	s, err := h.store(c)
	if err != nil {
		return err
	}
	if err := s.Flush(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"lastSaved": s.State().LastSaved})
}

// -- SOAP --

func (h *Handler) SetSOAPField(c echo.Context) error {
	var body fieldValue
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	field := SOAPField(body.Field)
	if !field.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown soap field: "+body.Field)
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.SetSOAPField(field, body.Value)
	return snapshot(c, s)
}

func (h *Handler) UpdateVitals(c echo.Context) error {
	var body fieldValue
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	field := VitalField(body.Field)
	if !field.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown vitals field: "+body.Field)
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.UpdateVitals(field, body.Value)
	return snapshot(c, s)
}

func listParam(c echo.Context) (ListField, error) {
	list := ListField(c.Param("list"))
	if !list.Valid() {
		return "", echo.NewHTTPError(http.StatusBadRequest, "unknown list: "+c.Param("list"))
	}
	return list, nil
}

func (h *Handler) AddListItem(c echo.Context) error {
	list, err := listParam(c)
	if err != nil {
		return err
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.AddListItem(list, body.Value)
	return snapshot(c, s)
}

func (h *Handler) RemoveListItem(c echo.Context) error {
	list, err := listParam(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.RemoveListItem(list, index)
	return snapshot(c, s)
}

// -- Prescriptions --

func (h *Handler) AddPrescription(c echo.Context) error {
	var rx Prescription
	if err := c.Bind(&rx); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if rx.ID == "" {
		rx.ID = uuid.NewString()
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.AddPrescription(rx)
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	var patch PrescriptionPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.UpdatePrescription(c.Param("id"), patch)
	return snapshot(c, s)
}

func (h *Handler) RemovePrescription(c echo.Context) error {
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.RemovePrescription(c.Param("id"))
	return snapshot(c, s)
}

// -- Lab orders --

func (h *Handler) AddLabOrder(c echo.Context) error {
	var o LabOrder
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.AddLabOrder(o)
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) UpdateLabOrder(c echo.Context) error {
	var patch LabOrderPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.UpdateLabOrder(c.Param("id"), patch)
	return snapshot(c, s)
}

func (h *Handler) RemoveLabOrder(c echo.Context) error {
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.RemoveLabOrder(c.Param("id"))
	return snapshot(c, s)
}

// -- Imaging orders --

func (h *Handler) AddImagingOrder(c echo.Context) error {
	var o ImagingOrder
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.AddImagingOrder(o)
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) UpdateImagingOrder(c echo.Context) error {
	var patch ImagingOrderPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.UpdateImagingOrder(c.Param("id"), patch)
	return snapshot(c, s)
}

func (h *Handler) RemoveImagingOrder(c echo.Context) error {
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.RemoveImagingOrder(c.Param("id"))
	return snapshot(c, s)
}

// -- Outside orders --

func validOutsideType(t OutsideOrderType) bool {
	return t == OutsideExternal || t == OutsideInternal
}

func (h *Handler) AddOutsideOrder(c echo.Context) error {
	var o OutsideOrder
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !validOutsideType(o.Type) {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be external or internal")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.AddOutsideOrder(o)
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) UpdateOutsideOrder(c echo.Context) error {
	var patch OutsideOrderPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if patch.Type != nil && !validOutsideType(*patch.Type) {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be external or internal")
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.UpdateOutsideOrder(c.Param("id"), patch)
	return snapshot(c, s)
}

func (h *Handler) RemoveOutsideOrder(c echo.Context) error {
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.RemoveOutsideOrder(c.Param("id"))
	return snapshot(c, s)
}

// -- Notes, flags and UI --

func (h *Handler) SetPrivateNotes(c echo.Context) error {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.SetPrivateNotes(body.Notes)
	return snapshot(c, s)
}

func (h *Handler) SetFinished(c echo.Context) error {
	var body struct {
		Finished *bool `json:"finished"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Finished == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "finished is required")
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.SetFinished(*body.Finished)
	return snapshot(c, s)
}

func (h *Handler) ToggleAIVisibility(c echo.Context) error {
	s, err := h.store(c)
	if err != nil {
		return err
	}
	s.ToggleAIVisibility()
	return snapshot(c, s)
}

func (h *Handler) UpdateUI(c echo.Context) error {
	var body struct {
		ActiveSection     *string `json:"activeSection"`
		PatientDrawerOpen *bool   `json:"patientDrawerOpen"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.store(c)
	if err != nil {
		return err
	}
	if body.ActiveSection != nil {
		s.SetActiveSection(*body.ActiveSection)
	}
	if body.PatientDrawerOpen != nil {
		s.SetPatientDrawerOpen(*body.PatientDrawerOpen)
	}
	return snapshot(c, s)
}
