package handlers

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/mgmu/hortus/internal/database"
	"github.com/mgmu/hortus/internal/logger"
	"github.com/mgmu/hortus/internal/plants"
	"github.com/mgmu/hortus/internal/records"
	"go.uber.org/zap"
)

var (
	IndexRoute   = "/"
	AboutRoute   = "/about"
	CreateRoute  = "/create"
	PlantRoute   = "/plant/:plant_id"
	HarvestRoute = "/harvest/:plant_id"
	EditRoute    = "/edit/:plant_id"
	DeleteRoute  = "/delete/:plant_id"
	HealthRoute  = "/healthz"
	notAllowed   = "Method not allowed"
	notFound     = "Not found"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// Records is the part of records.Service used by the handlers.
type Records interface {
	ListPlants(ctx context.Context) ([]plants.Plant, error)
	CreatePlant(ctx context.Context, p plants.Plant) (plants.ID, error)
	GetPlant(ctx context.Context, rawID string) (plants.Plant, error)
	GetPlantDetail(ctx context.Context, rawID string) (records.Detail, error)
	LogHarvest(ctx context.Context, rawID string, h plants.Harvest) (plants.ID, error)
	UpdatePlant(ctx context.Context, rawID string, p plants.Plant) error
	DeletePlant(ctx context.Context, rawID string) error
	Ping(ctx context.Context) error
}

// Encapsulates environment data for URL handlers
type HandlerEnv struct {
	templates *template.Template
	records   Records
	log       *zap.Logger
	navBar    navBarLinks
}

func New(rec Records, log *zap.Logger) (*HandlerEnv, error) {
	t, err := template.ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	navBar := navBarLinks{IndexRoute, CreateRoute, AboutRoute}
	return &HandlerEnv{t, rec, log, navBar}, nil
}

// Encapsulates the nav bar links
type navBarLinks struct {
	Home     string
	AddPlant string
	About    string
}

// Encapsulates the name and variety of a plant and a link to the web page
// displaying more detailed information.
type plantLink struct {
	Link    string
	Name    string
	Variety string
}

type plantLinksWithNavBar struct {
	PlantLinks []plantLink
	NavBar     navBarLinks
}

type formWithNavBar struct {
	ActionURL string
	NavBar    navBarLinks
}

type plantDetailWithNavBar struct {
	Plant      plants.Plant
	Harvests   []plants.Harvest
	HarvestURL string
	EditURL    string
	DeleteURL  string
	NavBar     navBarLinks
}

type plantFormWithNavBar struct {
	Plant     plants.Plant
	ActionURL string
	NavBar    navBarLinks
}

// Router returns the gin engine serving every route of the application.
func (e *HandlerEnv) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(logger.RequestID(), logger.GinMiddleware(e.log), logger.Recovery(e.log))
	r.SetHTMLTemplate(e.templates)

	r.GET(IndexRoute, e.PlantsListHandler())
	r.GET(AboutRoute, e.AboutHandler())
	r.GET(CreateRoute, e.CreateFormHandler())
	r.POST(CreateRoute, e.CreatePlantHandler())
	r.GET(PlantRoute, e.PlantDetailHandler())
	r.POST(HarvestRoute, e.LogHarvestHandler())
	r.GET(EditRoute, e.EditFormHandler())
	r.POST(EditRoute, e.UpdatePlantHandler())
	r.POST(DeleteRoute, e.DeletePlantHandler())
	r.GET(HealthRoute, e.HealthHandler())

	r.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, notAllowed)
	})
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, notFound)
	})
	return r
}

// Returns a handler for the "/" URL.
// Sends back an HTML document listing every plant with a link to its page.
func (e *HandlerEnv) PlantsListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ps, err := e.records.ListPlants(c.Request.Context())
		if err != nil {
			e.renderError(c, err)
			return
		}
		links := plantsToPlantLinks(ps)
		c.HTML(http.StatusOK, "plants_list.gohtml", plantLinksWithNavBar{links, e.navBar})
	}
}

func (e *HandlerEnv) AboutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "about.gohtml", formWithNavBar{NavBar: e.navBar})
	}
}

// Returns a handler for GET "/create", an HTML page with a form to add a new
// plant. The submit button sends a POST request to the same URL.
func (e *HandlerEnv) CreateFormHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "create.gohtml", formWithNavBar{CreateRoute, e.navBar})
	}
}

// Returns a handler for POST "/create". Parses the form, stores the new plant
// and redirects to the plant's information page.
func (e *HandlerEnv) CreatePlantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			e.renderError(c, err)
			return
		}
		id, err := e.records.CreatePlant(c.Request.Context(), plantFromForm(c.Request.PostForm))
		if err != nil {
			e.renderError(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, plantURL(id.String()))
	}
}

// Returns a handler for the "/plant/{plant_id}" URL. On success, returns an
// HTML document with the plant and its harvests. A malformed or unknown
// identifier gets the error page.
func (e *HandlerEnv) PlantDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := e.records.GetPlantDetail(c.Request.Context(), c.Param("plant_id"))
		if err != nil {
			e.renderError(c, err)
			return
		}
		id := d.Plant.Id.String()
		c.HTML(http.StatusOK, "detail.gohtml", plantDetailWithNavBar{
			Plant:      d.Plant,
			Harvests:   d.Harvests,
			HarvestURL: harvestURL(id),
			EditURL:    editURL(id),
			DeleteURL:  deleteURL(id),
			NavBar:     e.navBar,
		})
	}
}

// Returns a handler for POST "/harvest/{plant_id}". Logs a harvest and
// redirects to the plant's page.
func (e *HandlerEnv) LogHarvestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			e.renderError(c, err)
			return
		}
		id := c.Param("plant_id")
		h := plants.Harvest{
			Quantity: c.Request.PostForm.Get("harvested_amount"),
			Date:     c.Request.PostForm.Get("date_planted"),
		}
		if _, err := e.records.LogHarvest(c.Request.Context(), id, h); err != nil {
			e.renderError(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, plantURL(id))
	}
}

func (e *HandlerEnv) EditFormHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := e.records.GetPlant(c.Request.Context(), c.Param("plant_id"))
		if err != nil {
			e.renderError(c, err)
			return
		}
		c.HTML(http.StatusOK, "edit.gohtml", plantFormWithNavBar{
			Plant:     p,
			ActionURL: editURL(p.Id.String()),
			NavBar:    e.navBar,
		})
	}
}

// Returns a handler for POST "/edit/{plant_id}". Every field is overwritten,
// a field missing from the form is stored empty.
func (e *HandlerEnv) UpdatePlantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			e.renderError(c, err)
			return
		}
		id := c.Param("plant_id")
		err := e.records.UpdatePlant(c.Request.Context(), id, plantFromForm(c.Request.PostForm))
		if err != nil {
			e.renderError(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, plantURL(id))
	}
}

// Returns a handler for POST "/delete/{plant_id}". Deletes the plant and its
// harvests and redirects to the plants list.
func (e *HandlerEnv) DeletePlantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := e.records.DeletePlant(c.Request.Context(), c.Param("plant_id")); err != nil {
			e.renderError(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, IndexRoute)
	}
}

func (e *HandlerEnv) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := e.records.Ping(c.Request.Context()); err != nil {
			logger.FromContext(c).Warn("Health check failed", zap.Error(err))
			c.String(http.StatusServiceUnavailable, "unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	}
}

// renderError logs err and sends the generic error page. The page is the same
// whatever the cause.
func (e *HandlerEnv) renderError(c *gin.Context, err error) {
	fields := []zap.Field{
		zap.String("kind", string(database.KindOf(err))),
		zap.Error(err),
	}
	var dbErr *database.Error
	if errors.As(err, &dbErr) && dbErr.Op != "" {
		fields = append(fields, zap.String("op", dbErr.Op))
	}
	logger.FromContext(c).Warn("Request failed", fields...)
	_ = c.Error(err)
	c.HTML(http.StatusOK, "error.gohtml", formWithNavBar{NavBar: e.navBar})
}

// plantFromForm reads the plant fields of a submitted form. "plant_name" is
// accepted for forms predating the "name" field.
func plantFromForm(form url.Values) plants.Plant {
	name := form.Get("name")
	if !form.Has("name") {
		name = form.Get("plant_name")
	}
	return plants.Plant{
		Name:        name,
		Variety:     form.Get("variety"),
		Photo:       form.Get("photo"),
		DatePlanted: form.Get("date_planted"),
	}
}

func plantURL(id string) string {
	return "/plant/" + url.PathEscape(id)
}

func harvestURL(id string) string {
	return "/harvest/" + url.PathEscape(id)
}

func editURL(id string) string {
	return "/edit/" + url.PathEscape(id)
}

func deleteURL(id string) string {
	return "/delete/" + url.PathEscape(id)
}

// converts a slice of plants to a slice of plant links
func plantsToPlantLinks(ps []plants.Plant) []plantLink {
	plantLinks := make([]plantLink, len(ps))
	for i, plant := range ps {
		plantLinks[i].Link = plantURL(plant.Id.String())
		plantLinks[i].Name = plant.Name
		plantLinks[i].Variety = plant.Variety
	}
	return plantLinks
}
