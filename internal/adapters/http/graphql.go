package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

var errCatalogUnavailable = errors.New("scene catalog not available")

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lat": &graphql.Field{Type: graphql.Float},
			"min_lon": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
			"max_lon": &graphql.Field{Type: graphql.Float},
		},
	})

	sceneMetaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SceneMetadata",
		Fields: graphql.Fields{
			"acq_mode":     &graphql.Field{Type: graphql.String},
			"polarisation": &graphql.Field{Type: graphql.String},
			"resolution":   &graphql.Field{Type: graphql.Int},
			"nodata":       &graphql.Field{Type: graphql.Int},
			"band_min":     &graphql.Field{Type: graphql.Float},
			"band_max":     &graphql.Field{Type: graphql.Float},
		},
	})

	sceneGeoType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SceneGeometry",
		Fields: graphql.Fields{
			"columns":   &graphql.Field{Type: graphql.Int},
			"rows":      &graphql.Field{Type: graphql.Int},
			"epsg":      &graphql.Field{Type: graphql.String},
			"bounds":    &graphql.Field{Type: boundsType},
			"footprint": &graphql.Field{Type: graphql.String},
		},
	})

	sceneOutputType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SceneOutput",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.Int},
			"description": &graphql.Field{Type: graphql.String},
			"filepath":    &graphql.Field{Type: graphql.String},
		},
	})

	sceneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Scene",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.Int},
			"sensor":     &graphql.Field{Type: graphql.String},
			"orbit":      &graphql.Field{Type: graphql.String},
			"date":       &graphql.Field{Type: graphql.DateTime},
			"filepath":   &graphql.Field{Type: graphql.String},
			"time_added": &graphql.Field{Type: graphql.DateTime},
			"meta":       &graphql.Field{Type: sceneMetaType},
			"geo":        &graphql.Field{Type: sceneGeoType},
			"outputs": &graphql.Field{
				Type: graphql.NewList(sceneOutputType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, ok := p.Source.(domain.Scene)
					if !ok {
						if sp, isPtr := p.Source.(*domain.Scene); isPtr {
							s, ok = *sp, true
						}
					}
					if !ok || deps.Scenes == nil {
						return nil, nil
					}
					return deps.Scenes.Outputs(p.Context, s.ID)
				},
			},
		},
	})

	shapeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Shape",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"kind":       &graphql.Field{Type: graphql.String},
			"layer_id":   &graphql.Field{Type: graphql.String},
			"created_at": &graphql.Field{Type: graphql.DateTime},
			"geometry": &graphql.Field{
				Type:        graphql.String,
				Description: "GeoJSON geometry object",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, ok := p.Source.(domain.Shape)
					if !ok || s.Geometry == nil {
						return nil, nil
					}
					data, err := geojson.NewGeometry(s.Geometry).MarshalJSON()
					if err != nil {
						return nil, err
					}
					return string(data), nil
				},
			},
		},
	})

	layerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Layer",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"source":        &graphql.Field{Type: graphql.String},
			"projection":    &graphql.Field{Type: graphql.String},
			"feature_count": &graphql.Field{Type: graphql.Int},
			"bounds":        &graphql.Field{Type: boundsType},
		},
	})

	overlayType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RasterOverlay",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"source":     &graphql.Field{Type: graphql.String},
			"bounds":     &graphql.Field{Type: boundsType},
			"opacity":    &graphql.Field{Type: graphql.Float},
			"resolution": &graphql.Field{Type: graphql.Int},
		},
	})

	workspaceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Workspace",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"shapes":     &graphql.Field{Type: graphql.NewList(shapeType)},
			"layers":     &graphql.Field{Type: graphql.NewList(layerType)},
			"overlays":   &graphql.Field{Type: graphql.NewList(overlayType)},
			"bounds": &graphql.Field{
				Type:        boundsType,
				Description: "Extent of all shapes, null when empty",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					w, ok := p.Source.(*domain.Workspace)
					if !ok {
						return nil, nil
					}
					if b, ok := w.Bound(); ok {
						return b, nil
					}
					return nil, nil
				},
			},
			"created_at": &graphql.Field{Type: graphql.DateTime},
			"last_seen":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	tileLayerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TileLayer",
		Fields: graphql.Fields{
			"url_template": &graphql.Field{Type: graphql.String},
			"attribution":  &graphql.Field{Type: graphql.String},
			"max_zoom":     &graphql.Field{Type: graphql.Int},
			"subdomains":   &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	drawOptionsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DrawOptions",
		Fields: graphql.Fields{
			"polygon":      &graphql.Field{Type: graphql.Boolean},
			"rectangle":    &graphql.Field{Type: graphql.Boolean},
			"circle":       &graphql.Field{Type: graphql.Boolean},
			"polyline":     &graphql.Field{Type: graphql.Boolean},
			"marker":       &graphql.Field{Type: graphql.Boolean},
			"circlemarker": &graphql.Field{Type: graphql.Boolean},
			"remove":       &graphql.Field{Type: graphql.Boolean},
		},
	})

	mapViewType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MapView",
		Fields: graphql.Fields{
			"center":     &graphql.Field{Type: geoPointType},
			"zoom":       &graphql.Field{Type: graphql.Int},
			"tile_layer": &graphql.Field{Type: tileLayerType},
			"draw":       &graphql.Field{Type: drawOptionsType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"scenes": &graphql.Field{
				Type:        graphql.NewList(sceneType),
				Description: "List catalog scenes ordered by id",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Scenes == nil {
						return nil, errCatalogUnavailable
					}
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					scenes, _, err := deps.Scenes.List(p.Context, offset, limit)
					return scenes, err
				},
			},
			"scene": &graphql.Field{
				Type:        sceneType,
				Description: "Get a scene by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Scenes == nil {
						return nil, errCatalogUnavailable
					}
					id := p.Args["id"].(int)
					return deps.Scenes.Get(p.Context, int64(id))
				},
			},
			"workspace": &graphql.Field{
				Type:        workspaceType,
				Description: "Get a workspace with its shapes, layers and overlays",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Workspaces.Get(p.Context, id)
				},
			},
			"mapConfig": &graphql.Field{
				Type:        mapViewType,
				Description: "Initial map view for a new page",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Maps.View(p.Context), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
