package types

// Table snapshot (set-table data):
//   id: string
//   background: string
//   pointToScreen: number            // 0 when nothing is pointed at
//   mainScale, handScale: number     // optional, 1 when absent
//   localScreen: number              // receiver's screen index
//   screenAmount: number             // host + registered peers
//   open: boolean                    // false rejects new peers
//   stacks: Stack[]
//   cards: Card[]
//   spriteSheets: { [source]: { source: string, sprites: Sprite[] } }
//
// Stack:
//   id, tableId: string
//   screen: number
//   position: { x, y }
//   rotation, elevation, height, messinessRotation: number
//   flipped: boolean
//   style: "messy" | "simple" | "side-by-side"
//   taking: "one" | "all" | "top"
//   defaultStack, autoArrange: boolean   // optional
//   name, destStackName: string          // optional
//
// Card:
//   id: string
//   stackId: string | null           // null while in transit
//   stackIndex: number               // contiguous 0..n-1 per stack
//   frontSprite, backSprite: string
//   frontSpriteSheetSource, backSpriteSheetSource: string
//   position: { x, y }
//   rotation: number
//   flipped, flipping, moving: boolean
//
// Sprite: { name: string, x, y, width, height: number }
