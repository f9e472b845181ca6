package validators

import "go.mongodb.org/mongo-driver/bson"

var ActivityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"next_ticket_number",
			"current_call",
			"waiting_count",
			"version",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"next_ticket_number": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"current_call": bson.M{
				"bsonType": "object",
				"required": []string{"state"},
				"properties": bson.M{
					"state": bson.M{
						"bsonType": "string",
						"enum":     []string{"idle", "calling"},
					},
				},
			},

			"waiting_count": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
